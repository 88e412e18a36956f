package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"deal_aggregator/internal/config"
	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/service/mocks"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func deal(id int64, sale, normal string, discount int, src domain.SourceID) domain.Deal {
	return domain.Deal{
		Title:       fmt.Sprintf("Game %d", id),
		SteamAppID:  id,
		SalePrice:   decimal.RequireFromString(sale),
		NormalPrice: decimal.RequireFromString(normal),
		Discount:    discount,
		Store:       domain.Store,
		Type:        domain.DealTypeSale,
		Source:      src,
		URL:         fmt.Sprintf("https://store.steampowered.com/app/%d", id),
	}
}

type AggregateServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	cheapshark *mocks.MockSource
	itad       *mocks.MockSource
	runs       *mocks.MockRunStore
	txManager  *mocks.MockTransactionManager
	publisher  *mocks.MockPublisher
	fallback   *mocks.MockFallbackLoader

	service *AggregateService
	cfg     config.AggregateConfig
	logger  *slog.Logger
}

func (s *AggregateServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.cheapshark = mocks.NewMockSource(s.ctrl)
	s.itad = mocks.NewMockSource(s.ctrl)
	s.runs = mocks.NewMockRunStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.fallback = mocks.NewMockFallbackLoader(s.ctrl)

	s.cfg = config.AggregateConfig{
		MaxResults: 3000,
		Timeout:    time.Minute,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.cheapshark.EXPECT().ID().Return(domain.SourceCheapShark).AnyTimes()
	s.cheapshark.EXPECT().Name().Return("CheapShark").AnyTimes()
	s.itad.EXPECT().ID().Return(domain.SourceITAD).AnyTimes()
	s.itad.EXPECT().Name().Return("IsThereAnyDeal").AnyTimes()

	s.service = s.newService(s.runs, s.txManager, s.publisher)
}

func (s *AggregateServiceTestSuite) newService(runs RunStore, tx TransactionManager, pub Publisher) *AggregateService {
	return NewAggregateService(
		[]Source{s.cheapshark, s.itad},
		runs,
		tx,
		pub,
		s.fallback,
		nil,
		s.logger,
		s.cfg,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "run-1" }),
	)
}

func (s *AggregateServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestAggregateServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AggregateServiceTestSuite))
}

func (s *AggregateServiceTestSuite) expectBookkeeping() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.runs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.runs.EXPECT().AddSourceStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
}

func (s *AggregateServiceTestSuite) TestAggregate_OverlappingSourcesKeepBestDeal() {
	ctx := context.Background()

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(
		[]domain.Deal{
			deal(100, "15", "50", 70, domain.SourceCheapShark),
			deal(200, "5", "10", 50, domain.SourceCheapShark),
		},
		domain.SourceStats{SourceID: domain.SourceCheapShark, Pages: 1, Fetched: 2, Normalized: 2},
	)
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(
		[]domain.Deal{deal(100, "10", "50", 80, domain.SourceITAD)},
		domain.SourceStats{SourceID: domain.SourceITAD, Pages: 1, Fetched: 1, Normalized: 1},
	)
	s.expectBookkeeping()

	result, err := s.service.Aggregate(ctx)

	s.Require().NoError(err)
	s.True(result.Success)
	s.False(result.Degraded)
	s.Require().Equal(2, result.Count)
	s.Require().Len(result.Deals, 2)

	best := result.Deals[0]
	s.Equal(int64(100), best.SteamAppID)
	s.Equal(80, best.Discount)
	s.True(best.SalePrice.Equal(decimal.NewFromInt(10)))
	s.Equal(domain.SourceITAD, best.Source)
	s.Equal(int64(200), result.Deals[1].SteamAppID)

	s.Equal(2, result.Debug.PerSourceCounts[domain.SourceCheapShark])
	s.Equal(1, result.Debug.PerSourceCounts[domain.SourceITAD])
	s.Equal(fixedNow, result.Timestamp)
}

func (s *AggregateServiceTestSuite) TestAggregate_AllSourcesEmptyServesFallback() {
	ctx := context.Background()

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(nil,
		domain.SourceStats{SourceID: domain.SourceCheapShark, FirstPageFailed: true, LastError: "timeout"})
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(nil, domain.SourceStats{SourceID: domain.SourceITAD})

	fallbackDeals := []domain.Deal{
		deal(620, "1.99", "9.99", 80, domain.SourceFallback),
		deal(440, "4.99", "9.99", 50, domain.SourceFallback),
	}
	s.fallback.EXPECT().Load(fixedNow).Return(fallbackDeals, nil)
	s.expectBookkeeping()

	result, err := s.service.Aggregate(ctx)

	s.Require().NoError(err)
	s.True(result.Success)
	s.True(result.Degraded)
	s.Equal(2, result.Count)
	for _, d := range result.Deals {
		s.Equal(domain.SourceFallback, d.Source)
	}
	s.Equal(0, result.Debug.PerSourceCounts[domain.SourceCheapShark])
}

func (s *AggregateServiceTestSuite) TestAggregate_FallbackFailureIsFatal() {
	ctx := context.Background()
	fallbackErr := errors.New("corrupt dataset")

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(nil, domain.SourceStats{SourceID: domain.SourceCheapShark})
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(nil, domain.SourceStats{SourceID: domain.SourceITAD})
	s.fallback.EXPECT().Load(fixedNow).Return(nil, fallbackErr)

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.runs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, run *domain.AggregationRun) error {
			s.False(run.Success)
			s.Contains(run.Error, "corrupt dataset")
			return nil
		},
	)
	s.runs.EXPECT().AddSourceStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)

	result, err := s.service.Aggregate(ctx)

	s.Nil(result)
	s.ErrorIs(err, fallbackErr)
}

func (s *AggregateServiceTestSuite) TestAggregate_PanickingSourceKeepsOtherDeals() {
	ctx := context.Background()

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).DoAndReturn(
		func(context.Context) ([]domain.Deal, domain.SourceStats) {
			panic("nil map write")
		},
	)
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(
		[]domain.Deal{deal(100, "10", "50", 80, domain.SourceITAD)},
		domain.SourceStats{SourceID: domain.SourceITAD, Pages: 1, Fetched: 1, Normalized: 1},
	)

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.runs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, run *domain.AggregationRun) error {
			s.True(run.Success)
			s.Require().Len(run.Sources, 2)
			s.Equal(domain.SourceCheapShark, run.Sources[0].SourceID)
			s.True(run.Sources[0].Aborted)
			s.Contains(run.Sources[0].LastError, "nil map write")
			return nil
		},
	)
	s.runs.EXPECT().AddSourceStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	result, err := s.service.Aggregate(ctx)

	s.Require().NoError(err)
	s.True(result.Success)
	s.False(result.Degraded)
	s.Require().Len(result.Deals, 1)
	s.Equal(int64(100), result.Deals[0].SteamAppID)
	s.Equal(domain.SourceITAD, result.Deals[0].Source)
	s.Equal(0, result.Debug.PerSourceCounts[domain.SourceCheapShark])
}

func (s *AggregateServiceTestSuite) TestAggregate_InterruptedContextSkipsFallback() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(nil,
		domain.SourceStats{SourceID: domain.SourceCheapShark, FirstPageFailed: true, LastError: "context canceled"})
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(nil,
		domain.SourceStats{SourceID: domain.SourceITAD, FirstPageFailed: true, LastError: "context canceled"})

	s.service = s.newService(nil, nil, nil)

	result, err := s.service.Aggregate(ctx)

	s.Nil(result)
	s.ErrorIs(err, context.Canceled)
	s.NotErrorIs(err, ErrPipelinePanic)
}

func (s *AggregateServiceTestSuite) TestAggregate_DropsInvalidAndSortsByDiscount() {
	ctx := context.Background()

	noDiscount := deal(300, "10", "10", 0, domain.SourceCheapShark)
	noTitle := deal(301, "1", "10", 90, domain.SourceCheapShark)
	noTitle.Title = "  "

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(
		[]domain.Deal{
			deal(1, "7", "10", 30, domain.SourceCheapShark),
			noDiscount,
			deal(2, "1", "10", 90, domain.SourceCheapShark),
			noTitle,
			deal(3, "5", "10", 50, domain.SourceCheapShark),
		},
		domain.SourceStats{SourceID: domain.SourceCheapShark},
	)
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(nil, domain.SourceStats{SourceID: domain.SourceITAD})

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.runs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, run *domain.AggregationRun) error {
			s.True(run.Success)
			s.Equal(5, run.Merged)
			s.Equal(2, run.Invalid)
			s.Equal(3, run.Count)
			s.Len(run.Sources, 2)
			return nil
		},
	)
	s.runs.EXPECT().AddSourceStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	result, err := s.service.Aggregate(ctx)

	s.Require().NoError(err)
	s.Require().Len(result.Deals, 3)
	s.Equal([]int64{2, 3, 1}, []int64{result.Deals[0].SteamAppID, result.Deals[1].SteamAppID, result.Deals[2].SteamAppID})
	for _, d := range result.Deals {
		s.Positive(d.Discount)
		s.True(d.SalePrice.LessThan(d.NormalPrice))
	}
}

func (s *AggregateServiceTestSuite) TestAggregate_TruncatesToMaxResults() {
	ctx := context.Background()
	s.cfg.MaxResults = 2
	s.service = s.newService(nil, nil, nil)

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(
		[]domain.Deal{
			deal(1, "9", "10", 10, domain.SourceCheapShark),
			deal(2, "2", "10", 80, domain.SourceCheapShark),
			deal(3, "5", "10", 50, domain.SourceCheapShark),
		},
		domain.SourceStats{SourceID: domain.SourceCheapShark},
	)
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(nil, domain.SourceStats{SourceID: domain.SourceITAD})

	result, err := s.service.Aggregate(ctx)

	s.Require().NoError(err)
	s.Equal(2, result.Count)
	s.Equal(int64(2), result.Deals[0].SteamAppID)
	s.Equal(int64(3), result.Deals[1].SteamAppID)
}

func (s *AggregateServiceTestSuite) TestAggregate_DebugSamplesCapped() {
	ctx := context.Background()
	s.service = s.newService(nil, nil, nil)

	var many []domain.Deal
	for i := int64(1); i <= 5; i++ {
		many = append(many, deal(i, "1", "10", 90, domain.SourceCheapShark))
	}
	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(many, domain.SourceStats{SourceID: domain.SourceCheapShark})
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(nil, domain.SourceStats{})

	result, err := s.service.Aggregate(ctx)

	s.Require().NoError(err)
	s.Len(result.Debug.PerSourceSamples[domain.SourceCheapShark], 3)
	s.Empty(result.Debug.PerSourceSamples[domain.SourceITAD])
	s.Equal(5, result.Debug.PerSourceCounts[domain.SourceCheapShark])
	s.Contains(result.Debug.PerSourceCounts, domain.SourceITAD)
}

func (s *AggregateServiceTestSuite) TestAggregate_BookkeepingFailuresAreNotFatal() {
	ctx := context.Background()

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(
		[]domain.Deal{deal(1, "1", "10", 90, domain.SourceCheapShark)},
		domain.SourceStats{SourceID: domain.SourceCheapShark},
	)
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(nil, domain.SourceStats{SourceID: domain.SourceITAD})

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))

	result, err := s.service.Aggregate(ctx)

	s.Require().NoError(err)
	s.Equal(1, result.Count)
}

func (s *AggregateServiceTestSuite) TestAggregate_RecordsWithoutTransactionManager() {
	ctx := context.Background()
	s.service = s.newService(s.runs, nil, nil)

	s.cheapshark.EXPECT().FetchDeals(gomock.Any()).Return(
		[]domain.Deal{deal(1, "1", "10", 90, domain.SourceCheapShark)},
		domain.SourceStats{SourceID: domain.SourceCheapShark},
	)
	s.itad.EXPECT().FetchDeals(gomock.Any()).Return(nil, domain.SourceStats{SourceID: domain.SourceITAD})

	s.runs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.runs.EXPECT().AddSourceStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)

	result, err := s.service.Aggregate(ctx)

	s.Require().NoError(err)
	s.Equal(1, result.Count)
}
