package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestSweeper(config Config) (*Sweeper, *MockOutboxRepository) {
	outboxRepo := &MockOutboxRepository{}
	return NewSweeper(config, outboxRepo, nil), outboxRepo
}

func TestSweeper_Start_Disabled(t *testing.T) {
	config := testConfig()
	config.Enabled = false
	s, _ := newTestSweeper(config)

	err := s.Start(context.Background())
	assert.NoError(t, err)
}

func TestSweeper_Start_ContextCancellation(t *testing.T) {
	s, _ := newTestSweeper(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Start(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestSweeper_Sweep(t *testing.T) {
	t.Run("deletes records past the retention window", func(t *testing.T) {
		config := testConfig()
		s, outboxRepo := newTestSweeper(config)

		ctx := context.Background()
		outboxRepo.On("DeleteSentBefore", ctx, mock.MatchedBy(func(cutoff time.Time) bool {
			expected := time.Now().UTC().Add(-config.RetentionWindow)
			return cutoff.Sub(expected).Abs() < time.Minute
		})).Return(int64(42), nil)

		deleted, err := s.Sweep(ctx, false)

		assert.NoError(t, err)
		assert.Equal(t, int64(42), deleted)
		outboxRepo.AssertExpectations(t)
	})

	t.Run("dry run only counts", func(t *testing.T) {
		s, outboxRepo := newTestSweeper(testConfig())

		ctx := context.Background()
		outboxRepo.On("CountSentBefore", ctx, mock.AnythingOfType("time.Time")).
			Return(int64(7), nil)

		counted, err := s.Sweep(ctx, true)

		assert.NoError(t, err)
		assert.Equal(t, int64(7), counted)
		outboxRepo.AssertNotCalled(t, "DeleteSentBefore")
	})

	t.Run("delete error", func(t *testing.T) {
		s, outboxRepo := newTestSweeper(testConfig())

		ctx := context.Background()
		outboxRepo.On("DeleteSentBefore", ctx, mock.AnythingOfType("time.Time")).
			Return(int64(0), errors.New("database error"))

		_, err := s.Sweep(ctx, false)
		assert.Error(t, err)
	})
}
