package settings_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskochergin/qletovo/internal/settings"
)

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "top_k", "best_k", "page_window", "max_snippet", "source_limit"}).
			AddRow(1, 12, 6, 1, 1200, 3)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, top_k, best_k, page_window, max_snippet, source_limit FROM settings WHERE id = 1")).
			WillReturnRows(rows)

		s, err := repo.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, &settings.Settings{ID: 1, TopK: 12, BestK: 6, PageWindow: 1, MaxSnippet: 1200, SourceLimit: 3}, s)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id")).
			WillReturnError(sqlmock.ErrCancelled)

		s, err := repo.Get(context.Background())
		assert.Error(t, err)
		assert.Nil(t, s)
	})
}

func TestPostgresRepo_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)
	s := &settings.Settings{TopK: 20, BestK: 8, PageWindow: 2, MaxSnippet: 900, SourceLimit: 4}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE settings SET top_k = $1, best_k = $2, page_window = $3, max_snippet = $4, source_limit = $5, updated_at = NOW() WHERE id = 1")).
		WithArgs(s.TopK, s.BestK, s.PageWindow, s.MaxSnippet, s.SourceLimit).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.Update(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Seed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &settings.Settings{TopK: 12, BestK: 6, PageWindow: 1, MaxSnippet: 1200, SourceLimit: 3}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settings (id, top_k, best_k, page_window, max_snippet, source_limit) VALUES (1, $1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING")).
		WithArgs(12, 6, 1, 1200, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, settings.NewPostgresRepo(db).Seed(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepo(t *testing.T) {
	ctx := context.Background()

	empty := settings.NewMemoryRepo(nil)
	_, err := empty.Get(ctx)
	assert.Error(t, err)

	repo := settings.NewMemoryRepo(&settings.Settings{TopK: 12, BestK: 6, MaxSnippet: 1200, SourceLimit: 3})
	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)

	got.TopK = 99
	again, _ := repo.Get(ctx)
	assert.Equal(t, 12, again.TopK, "Get must return a copy")

	require.NoError(t, repo.Update(ctx, &settings.Settings{TopK: 5, BestK: 5, MaxSnippet: 10, SourceLimit: 1}))
	again, _ = repo.Get(ctx)
	assert.Equal(t, 5, again.TopK)
}

func TestSettings_Validate(t *testing.T) {
	valid := settings.Settings{TopK: 12, BestK: 6, PageWindow: 1, MaxSnippet: 1200, SourceLimit: 3}

	tests := []struct {
		name    string
		mutate  func(*settings.Settings)
		wantErr bool
	}{
		{"valid", func(*settings.Settings) {}, false},
		{"zero window allowed", func(s *settings.Settings) { s.PageWindow = 0 }, false},
		{"best equals top", func(s *settings.Settings) { s.BestK = 12 }, false},
		{"zero top_k", func(s *settings.Settings) { s.TopK = 0 }, true},
		{"best above top", func(s *settings.Settings) { s.BestK = 13 }, true},
		{"negative window", func(s *settings.Settings) { s.PageWindow = -1 }, true},
		{"window at bound", func(s *settings.Settings) { s.PageWindow = settings.MaxPageWindow }, false},
		{"huge window", func(s *settings.Settings) { s.PageWindow = 4194304 }, true},
		{"huge top_k", func(s *settings.Settings) { s.TopK, s.BestK = settings.MaxTopK+1, 1 }, true},
		{"huge snippet", func(s *settings.Settings) { s.MaxSnippet = settings.MaxSnippet + 1 }, true},
		{"huge source limit", func(s *settings.Settings) { s.SourceLimit = settings.MaxSourceLimit + 1 }, true},
		{"zero snippet", func(s *settings.Settings) { s.MaxSnippet = 0 }, true},
		{"zero source limit", func(s *settings.Settings) { s.SourceLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, settings.ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
