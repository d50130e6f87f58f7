package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"replay/crumbs/internal/client"
	"replay/crumbs/internal/domain"
	"replay/crumbs/internal/domain/task"
	"replay/crumbs/internal/queue"
	"replay/crumbs/internal/repository"
	"replay/crumbs/internal/state"
	"replay/crumbs/internal/summarizer"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// defaultMinIdleTime is used when no positive idle time is configured, in seconds
const defaultMinIdleTime = 120

type Service struct {
	repository  repository.TrailRepository
	client      client.ReplayClient
	queue       queue.Queue
	cache       state.TrailCache
	clicks      state.ClickRecorder
	minIdleTime time.Duration
	maxRetries  int
}

func NewService(
	repository repository.TrailRepository,
	client client.ReplayClient,
	queue queue.Queue,
	cache state.TrailCache,
	clicks state.ClickRecorder,
	minIdleTime int,
	maxRetries int,
) *Service {
	if minIdleTime <= 0 {
		minIdleTime = defaultMinIdleTime
	}
	return &Service{
		repository:  repository,
		client:      client,
		queue:       queue,
		cache:       cache,
		clicks:      clicks,
		minIdleTime: time.Duration(minIdleTime) * time.Second,
		maxRetries:  maxRetries,
	}
}

// Enqueue schedules replays for synchronisation by the workers
func (s *Service) Enqueue(ctx context.Context, replayIDs ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, replayID := range replayIDs {
		g.Go(func() error {
			if _, err := s.queue.AddTask(ctx, &task.SummarizeReplayTask{ReplayID: replayID}); err != nil {
				return fmt.Errorf("failed to enqueue replay %s: %w", replayID, err)
			}
			log.Infof("📥 Enqueued replay %s", replayID)
			return nil
		})
	}

	return g.Wait()
}

// SyncReplay fetches a replay and its navigation breadcrumbs from the backend,
// stores them and refreshes the cache.
func (s *Service) SyncReplay(ctx context.Context, replayID string) (*domain.Trail, error) {
	var (
		replay *domain.Replay
		crumbs []domain.Breadcrumb
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		replay, err = s.client.GetReplay(gctx, replayID)
		return err
	})
	g.Go(func() error {
		var err error
		crumbs, err = s.client.GetBreadcrumbs(gctx, replayID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	replay.Count = len(crumbs)
	trail := &domain.Trail{Replay: *replay, Breadcrumbs: crumbs}

	if err := s.repository.SaveTrail(ctx, trail); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, trail); err != nil {
		log.Warnf("⚠️ Failed to cache trail for replay %s: %v", replayID, err)
		// A stale entry would hide the new trail until it expires.
		if err := s.cache.Invalidate(ctx, replayID); err != nil {
			log.Errorf("❌ %v", err)
		}
	}

	log.Infof("✅ Synced replay %s with %d navigation breadcrumbs", replayID, len(crumbs))
	return trail, nil
}

// Trail loads a replay trail from the cache, falling back to the repository
func (s *Service) Trail(ctx context.Context, replayID string) (*domain.Trail, error) {
	trail, err := s.cache.Get(ctx, replayID)
	if err != nil {
		log.Warnf("⚠️ Trail cache unavailable for replay %s: %v", replayID, err)
	}
	if trail != nil {
		return trail, nil
	}

	trail, err = s.repository.GetTrail(ctx, replayID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, trail); err != nil {
		log.Warnf("⚠️ Failed to cache trail for replay %s: %v", replayID, err)
	}

	return trail, nil
}

// Segments summarizes the trail of a replay, anchored at the replay start.
// Clickable segments record clicks when clicked.
func (s *Service) Segments(ctx context.Context, replayID string, clickable bool) ([]summarizer.Segment, error) {
	trail, err := s.Trail(ctx, replayID)
	if err != nil {
		return nil, err
	}

	var onClick summarizer.ClickHandler
	if clickable {
		onClick = func(crumb domain.Breadcrumb) {
			if err := s.clicks.RecordClick(ctx, replayID, crumb.ID); err != nil {
				log.Errorf("❌ %v", err)
			}
		}
	}

	return summarizer.Summarize(trail.Breadcrumbs, onClick, trail.Replay.StartedAt), nil
}

// Click clicks the segment or summary row bound to crumbID
func (s *Service) Click(ctx context.Context, replayID, crumbID string) error {
	trail, err := s.Trail(ctx, replayID)
	if err != nil {
		return err
	}

	var recordErr error
	onClick := func(crumb domain.Breadcrumb) {
		recordErr = s.clicks.RecordClick(ctx, replayID, crumb.ID)
	}

	segments := summarizer.Summarize(trail.Breadcrumbs, onClick, trail.Replay.StartedAt)
	click, ok := summarizer.FindClickable(segments, crumbID)
	if !ok {
		return fmt.Errorf("%w: %s in replay %s", domain.ErrCrumbNotFound, crumbID, replayID)
	}

	click()
	if recordErr != nil {
		return recordErr
	}

	log.Debugf("Recorded click on %s in replay %s", crumbID, replayID)
	return nil
}

func (s *Service) Clicks(ctx context.Context, replayID string) (map[string]int64, error) {
	return s.clicks.Clicks(ctx, replayID)
}

// RunWorkers drains every task stream until ctx is done. Each stream gets its
// share of numWorkers plus an auto-claimer.
func (s *Service) RunWorkers(ctx context.Context, numWorkers int) error {
	var wg sync.WaitGroup

	for _, def := range task.Definitions {
		s.runWorkersForStream(ctx, &wg, def, def.Workers(numWorkers))
	}

	wg.Wait()
	return nil
}

func (s *Service) runWorkersForStream(ctx context.Context, wg *sync.WaitGroup, def task.Definition, numWorkers int) {
	// Auto-claimer for messages left pending by dead consumers
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.minIdleTime)
		defer ticker.Stop()
		consumer := fmt.Sprintf("autoclaimer-%s", def.Pool)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				claimed, err := s.queue.AutoClaim(ctx, consumer, def, s.minIdleTime)
				if err != nil {
					log.Errorf("❌ Failed to auto-claim messages for %s: %v", def.Stream, err)
					continue
				}
				if len(claimed) > 0 {
					log.Infof("🔄 Auto-claimed %d messages from %s stream", len(claimed), def.Pool)
				}
				for i := range claimed {
					if err := s.processMessage(ctx, &claimed[i]); err != nil {
						log.Errorf("❌ Failed to process auto-claimed message %s: %v", claimed[i].ID, err)
					}
				}
			}
		}
	}()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			consumer := fmt.Sprintf("%s-worker-%d", def.Pool, workerID)
			log.Infof("🚀 Starting %s worker %d as consumer %s", def.Pool, workerID, consumer)
			for {
				select {
				case <-ctx.Done():
					log.Infof("🛑 %s worker %d stopping", def.Pool, workerID)
					return
				default:
				}

				msg, err := s.queue.GetTask(ctx, consumer, def)
				if err != nil {
					if ctx.Err() != nil {
						continue
					}
					log.Errorf("❌ Failed to get task from %s: %v", def.Stream, err)
					select {
					case <-ctx.Done():
					case <-time.After(time.Second):
					}
					continue
				}

				if msg != nil {
					if err := s.processMessage(ctx, msg); err != nil {
						log.Errorf("❌ Failed to process message %s: %v", msg.ID, err)
					}
				}
			}
		}(i + 1)
	}
}

func (s *Service) processMessage(ctx context.Context, msg *queue.Message) error {
	switch msg.Def.Type {
	case task.TypeSummarizeReplay:
		summarizeTask, err := task.UnmarshalTask[*task.SummarizeReplayTask](msg.Data)
		if err != nil {
			return fmt.Errorf("failed to unmarshal summarize task data: %w", err)
		}
		if err := s.summarizeReplay(ctx, summarizeTask); err != nil {
			return err
		}

	case task.TypeReplayRetry:
		retryTask, err := task.UnmarshalTask[*task.ReplayRetryTask](msg.Data)
		if err != nil {
			return fmt.Errorf("failed to unmarshal retry task data: %w", err)
		}
		if err := s.retryReplay(ctx, retryTask); err != nil {
			return fmt.Errorf("failed to retry replay: %w", err)
		}

	default:
		return fmt.Errorf("unknown task type: %s", msg.Def.Type)
	}

	if err := s.queue.AckTask(ctx, msg); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}

	return nil
}

func (s *Service) summarizeReplay(ctx context.Context, summarizeTask *task.SummarizeReplayTask) error {
	_, err := s.SyncReplay(ctx, summarizeTask.ReplayID)
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrReplayNotFound) {
		log.Warnf("⚠️ Replay %s does not exist, dropping task", summarizeTask.ReplayID)
		return nil
	}

	retryTask := &task.ReplayRetryTask{
		ReplayID:   summarizeTask.ReplayID,
		RetryCount: 0,
		Error:      err.Error(),
	}
	if _, addErr := s.queue.AddTask(ctx, retryTask); addErr != nil {
		return fmt.Errorf("failed to add retry task for replay %s: %w", summarizeTask.ReplayID, addErr)
	}

	log.Warnf("🔄 Added replay %s to retry queue due to error: %v", summarizeTask.ReplayID, err)
	return nil
}

func (s *Service) retryReplay(ctx context.Context, retryTask *task.ReplayRetryTask) error {
	retryTask.RetryCount++

	if retryTask.RetryCount > s.maxRetries {
		log.Errorf("❌ Giving up on replay %s after %d attempts: %s",
			retryTask.ReplayID, retryTask.RetryCount-1, retryTask.Error)
		return nil
	}

	log.Infof("🔄 Retrying replay %s (attempt %d)", retryTask.ReplayID, retryTask.RetryCount)

	_, err := s.SyncReplay(ctx, retryTask.ReplayID)
	if err == nil {
		log.Infof("✅ Recovered replay %s after %d attempts", retryTask.ReplayID, retryTask.RetryCount)
		return nil
	}

	if errors.Is(err, domain.ErrReplayNotFound) {
		log.Warnf("⚠️ Replay %s does not exist, dropping retry", retryTask.ReplayID)
		return nil
	}

	next := &task.ReplayRetryTask{
		ReplayID:   retryTask.ReplayID,
		RetryCount: retryTask.RetryCount,
		Error:      err.Error(),
	}
	if _, addErr := s.queue.AddTask(ctx, next); addErr != nil {
		log.Errorf("❌ Failed to re-add retry task for replay %s: %v", retryTask.ReplayID, addErr)
		return addErr
	}

	log.Warnf("🔄 Replay %s failed again, will retry (attempt %d): %v",
		retryTask.ReplayID, retryTask.RetryCount, err)
	return nil
}
