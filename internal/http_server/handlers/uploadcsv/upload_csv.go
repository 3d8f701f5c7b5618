package uploadcsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"invite_service/internal/invite"
	resp "invite_service/internal/lib/api/response"
	sl "invite_service/internal/lib/logger"
	"invite_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const maxUploadSize = 10 << 20 // 10 MiB

var requiredColumns = []string{"email", "name", "college", "branch", "year"}

type row struct {
	Email   string `validate:"required,email"`
	Name    string `validate:"required"`
	College string `validate:"required"`
	Branch  string `validate:"required"`
	Year    string `validate:"required"`
}

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

type Response struct {
	resp.Response
	TotalProcessed  int    `json:"total_processed"`
	NewlyAdded      int    `json:"newly_added"`
	Skipped         int    `json:"skipped"`
	NewlyAddedUsers []User `json:"newly_added_users"`
}

type Importer interface {
	Import(ctx context.Context, rows []invite.Registrant) (invite.ImportResult, error)
}

// New ingests a CSV of registrants. Rows whose email already exists are
// skipped; everything else gets a fresh unique token.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	service Importer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.uploadcsv.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("A CSV file is required"))

			return
		}
		defer file.Close()

		if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("File must be a CSV"))

			return
		}

		rows, err := parseRows(file, validate)
		if err != nil {
			log.Warn("rejected CSV upload", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(err.Error()))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		result, err := service.Import(ctx, rows)
		if err != nil {
			log.Error("failed to import users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("csv imported",
			slog.Int("total", result.TotalProcessed),
			slog.Int("added", result.NewlyAdded),
			slog.Int("skipped", result.Skipped),
		)

		render.JSON(w, r, Response{
			Response:        resp.OK(),
			TotalProcessed:  result.TotalProcessed,
			NewlyAdded:      result.NewlyAdded,
			Skipped:         result.Skipped,
			NewlyAddedUsers: toUsers(result.NewUsers),
		})
	}
}

func parseRows(file io.Reader, validate *validator.Validate) ([]invite.Registrant, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.New("CSV is empty or unreadable")
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("CSV must contain columns: %s", strings.Join(requiredColumns, ", "))
		}
	}

	var rows []invite.Registrant
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed CSV at line %d", line+1)
		}
		line++

		r := row{
			Email:   strings.TrimSpace(record[index["email"]]),
			Name:    strings.TrimSpace(record[index["name"]]),
			College: strings.TrimSpace(record[index["college"]]),
			Branch:  strings.TrimSpace(record[index["branch"]]),
			Year:    strings.TrimSpace(record[index["year"]]),
		}

		if err := validate.Struct(r); err != nil {
			return nil, fmt.Errorf("invalid row at line %d", line)
		}

		rows = append(rows, invite.Registrant{
			Email:   r.Email,
			Name:    r.Name,
			College: r.College,
			Branch:  r.Branch,
			Year:    r.Year,
		})
	}

	return rows, nil
}

func toUsers(all []models.User) []User {
	out := make([]User, 0, len(all))
	for _, u := range all {
		out = append(out, User{
			ID:    u.ID,
			Email: u.Email,
			Name:  u.Name,
			Token: u.Token,
		})
	}
	return out
}
