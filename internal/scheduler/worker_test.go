package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/scheduler/mocks"
)

type WorkerTestSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	queue  *mocks.MockQueue
	syncer *mocks.MockSyncer
	worker *Worker
}

func (s *WorkerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.queue = mocks.NewMockQueue(s.ctrl)
	s.syncer = mocks.NewMockSyncer(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.worker = NewWorker(s.queue, s.syncer, WorkerConfig{
		PollInterval: time.Second,
		Timeout:      time.Minute,
		MaxAttempts:  3,
	}, logger)
}

func (s *WorkerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (s *WorkerTestSuite) TestDrain_AcksSuccessfulUnits() {
	ctx := context.Background()
	first := &domain.Task{ID: "t1", Family: domain.FamilyImport, Cursor: domain.Cursor{Mode: domain.ModeTerms}, Attempts: 1}
	second := &domain.Task{ID: "t2", Family: domain.FamilyHistory, Cursor: domain.Cursor{Mode: domain.ModeHistory}, Attempts: 1}

	gomock.InOrder(
		s.queue.EXPECT().Claim(gomock.Any()).Return(first, nil),
		s.syncer.EXPECT().Run(gomock.Any(), first.Cursor).Return(nil),
		s.queue.EXPECT().Ack(gomock.Any(), "t1").Return(nil),
		s.queue.EXPECT().Claim(gomock.Any()).Return(second, nil),
		s.syncer.EXPECT().Run(gomock.Any(), second.Cursor).Return(nil),
		s.queue.EXPECT().Ack(gomock.Any(), "t2").Return(nil),
		s.queue.EXPECT().Claim(gomock.Any()).Return(nil, nil),
	)

	s.Equal(2, s.worker.Drain(ctx))
}

func (s *WorkerTestSuite) TestDrain_RetriesFromResumableCursor() {
	ctx := context.Background()
	task := &domain.Task{ID: "t1", Family: domain.FamilyImport, Cursor: domain.Cursor{Mode: domain.ModePOIs, Page: 1}, Attempts: 2}
	resumeAt := domain.Cursor{Mode: domain.ModePOIs, Page: 4}
	runErr := &domain.ResumableError{Cursor: resumeAt, Err: errors.New("timeout")}

	s.queue.EXPECT().Claim(gomock.Any()).Return(task, nil)
	s.syncer.EXPECT().Run(gomock.Any(), task.Cursor).Return(runErr)
	s.queue.EXPECT().Retry(gomock.Any(), task, resumeAt, 2*time.Second, runErr).Return(nil)
	s.queue.EXPECT().Claim(gomock.Any()).Return(nil, nil)

	s.Equal(1, s.worker.Drain(ctx))
}

func (s *WorkerTestSuite) TestDrain_RetriesPlainErrorFromSameCursor() {
	ctx := context.Background()
	task := &domain.Task{ID: "t1", Family: domain.FamilyActive, Cursor: domain.Cursor{Mode: domain.ModeActiveSync}, Attempts: 1}
	runErr := domain.ErrEmptyActiveSet

	s.queue.EXPECT().Claim(gomock.Any()).Return(task, nil)
	s.syncer.EXPECT().Run(gomock.Any(), task.Cursor).Return(runErr)
	s.queue.EXPECT().Retry(gomock.Any(), task, task.Cursor, time.Second, runErr).Return(nil)
	s.queue.EXPECT().Claim(gomock.Any()).Return(nil, nil)

	s.worker.Drain(ctx)
}

func (s *WorkerTestSuite) TestDrain_DropsAfterMaxAttempts() {
	ctx := context.Background()
	task := &domain.Task{ID: "t1", Family: domain.FamilyImport, Cursor: domain.Cursor{Mode: domain.ModePOIs}, Attempts: 3}

	s.queue.EXPECT().Claim(gomock.Any()).Return(task, nil)
	s.syncer.EXPECT().Run(gomock.Any(), task.Cursor).Return(errors.New("still failing"))
	s.queue.EXPECT().Ack(gomock.Any(), "t1").Return(nil)
	s.queue.EXPECT().Retry(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	s.queue.EXPECT().Claim(gomock.Any()).Return(nil, nil)

	s.worker.Drain(ctx)
}

func (s *WorkerTestSuite) TestDrain_DropsFatalErrors() {
	ctx := context.Background()
	task := &domain.Task{ID: "t1", Family: domain.FamilyImport, Cursor: domain.Cursor{Mode: "bogus"}, Attempts: 1}

	s.queue.EXPECT().Claim(gomock.Any()).Return(task, nil)
	s.syncer.EXPECT().Run(gomock.Any(), task.Cursor).Return(&domain.ConfigurationError{Field: "mode", Msg: "unknown"})
	s.queue.EXPECT().Ack(gomock.Any(), "t1").Return(nil)
	s.queue.EXPECT().Claim(gomock.Any()).Return(nil, nil)

	s.worker.Drain(ctx)
}

func (s *WorkerTestSuite) TestDrain_StopsOnClaimError() {
	s.queue.EXPECT().Claim(gomock.Any()).Return(nil, errors.New("connection refused"))

	s.Equal(0, s.worker.Drain(context.Background()))
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{40, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := RetryDelay(tt.attempt); got != tt.expected {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}
