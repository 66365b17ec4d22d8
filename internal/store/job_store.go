package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/lipsync/internal/model"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

const defaultListLimit = 50

// createScript writes the full document only if the key is new.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// mergeScript merges field/value pairs into an existing document.
var mergeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// mergeOnceScript merges ARGV[2..] only while the guard field ARGV[1] is absent.
var mergeOnceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 1
`)

// statusScript writes a status field and updatedAt. A non-terminal status
// does not replace a status whose seal field is already set.
// ARGV: statusField, status, terminal ("1"/"0"), sealField, updatedAt
var statusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if ARGV[3] == '1' or redis.call('HEXISTS', KEYS[1], ARGV[4]) == 0 then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
end
redis.call('HSET', KEYS[1], 'updatedAt', ARGV[5])
return 1
`)

// linkScript records the first secondary id on the job and its reverse index.
// ARGV: secondaryJobId, updatedAt, jobId
var linkScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HEXISTS', KEYS[1], 'secondaryJobId') == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'secondaryJobId', ARGV[1], 'updatedAt', ARGV[2])
redis.call('SET', KEYS[2], ARGV[3])
return 1
`)

// saveFinishedScript upserts a finished video and its listing entry unless
// the record is sealed by completedAt.
// ARGV: terminal ("1"/"0"), status, score, jobId, field/value pairs...
var saveFinishedScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'completedAt') == 1 then
	if ARGV[1] == '1' then
		redis.call('HSET', KEYS[1], 'status', ARGV[2])
		return 1
	end
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 5))
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
return 1
`)

// JobStore persists one Redis hash per job inside the owner's namespace.
type JobStore struct {
	redis *redis.Client
}

func NewJobStore(redisClient *redis.Client) *JobStore {
	return &JobStore{redis: redisClient}
}

func jobKey(owner, jobID string) string {
	return fmt.Sprintf("users:%s:jobs:%s", owner, jobID)
}

func secondaryKey(owner, secondaryID string) string {
	return fmt.Sprintf("users:%s:captions:%s", owner, secondaryID)
}

func videoKey(owner, jobID string) string {
	return fmt.Sprintf("users:%s:videos:%s", owner, jobID)
}

func videoIndexKey(owner string) string {
	return fmt.Sprintf("users:%s:videos", owner)
}

// Create writes a new job document. It fails with ErrJobExists if the id is taken.
func (s *JobStore) Create(ctx context.Context, job *model.Job) error {
	created, err := createScript.Run(ctx, s.redis, []string{jobKey(job.Owner, job.ID)}, job.Patch().Args()...).Int()
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if created == 0 {
		return ErrJobExists
	}
	return nil
}

// Get reads a job document.
func (s *JobStore) Get(ctx context.Context, owner, jobID string) (*model.Job, error) {
	h, err := s.redis.HGetAll(ctx, jobKey(owner, jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}
	if len(h) == 0 {
		return nil, ErrJobNotFound
	}
	return model.JobFromHash(h)
}

// Merge writes the patch into an existing job document.
func (s *JobStore) Merge(ctx context.Context, owner, jobID string, patch model.JobPatch) error {
	if len(patch) == 0 {
		return nil
	}
	merged, err := mergeScript.Run(ctx, s.redis, []string{jobKey(owner, jobID)}, patch.Args()...).Int()
	if err != nil {
		return fmt.Errorf("failed to merge job: %w", err)
	}
	if merged == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MergeOnce writes the patch only if guard is not yet set on the document.
// It reports whether the patch was applied.
func (s *JobStore) MergeOnce(ctx context.Context, owner, jobID, guard string, patch model.JobPatch) (bool, error) {
	if len(patch) == 0 {
		return false, nil
	}
	args := append([]interface{}{guard}, patch.Args()...)
	res, err := mergeOnceScript.Run(ctx, s.redis, []string{jobKey(owner, jobID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to merge job: %w", err)
	}
	if res < 0 {
		return false, ErrJobNotFound
	}
	return res == 1, nil
}

// Claim sets field to at unless it is already set. Exactly one caller per
// field and job observes true.
func (s *JobStore) Claim(ctx context.Context, owner, jobID, field string, at time.Time) (bool, error) {
	return s.MergeOnce(ctx, owner, jobID, field, model.JobPatch{field: model.FormatTime(at)})
}

// MergeStatus writes a provider status into statusField. Once sealField is
// set, only a terminal status may replace the stored one, so a late
// "processing" delivery cannot regress a finished stage.
func (s *JobStore) MergeStatus(ctx context.Context, owner, jobID, statusField string, status model.Status, sealField string, at time.Time) error {
	terminal := "0"
	if status.IsTerminal() {
		terminal = "1"
	}
	merged, err := statusScript.Run(ctx, s.redis, []string{jobKey(owner, jobID)},
		statusField, status.String(), terminal, sealField, model.FormatTime(at),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to merge status: %w", err)
	}
	if merged == 0 {
		return ErrJobNotFound
	}
	return nil
}

// LinkSecondary records the caption renderer's id on the job together with
// the reverse index used by FindBySecondary. Only the first link is kept;
// it reports whether this call created it.
func (s *JobStore) LinkSecondary(ctx context.Context, owner, jobID, secondaryID string, at time.Time) (bool, error) {
	res, err := linkScript.Run(ctx, s.redis,
		[]string{jobKey(owner, jobID), secondaryKey(owner, secondaryID)},
		secondaryID, model.FormatTime(at), jobID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to link secondary job: %w", err)
	}
	if res < 0 {
		return false, ErrJobNotFound
	}
	return res == 1, nil
}

// FindBySecondary resolves the job owning a caption renderer id.
func (s *JobStore) FindBySecondary(ctx context.Context, owner, secondaryID string) (*model.Job, error) {
	jobID, err := s.redis.Get(ctx, secondaryKey(owner, secondaryID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to resolve secondary job: %w", err)
	}
	return s.Get(ctx, owner, jobID)
}

// SaveFinished upserts the denormalized finished video record. Once the
// record carries completedAt it is sealed: a terminal status still replaces
// the stored one, anything else leaves the record and its listing score as
// they are.
func (s *JobStore) SaveFinished(ctx context.Context, video *model.FinishedVideo) error {
	score := float64(video.UpdatedAt.Unix())
	if video.CompletedAt != nil {
		score = float64(video.CompletedAt.Unix())
	}
	terminal := "0"
	if video.Status.IsTerminal() {
		terminal = "1"
	}

	args := append([]interface{}{
		terminal, video.Status.String(), strconv.FormatFloat(score, 'f', -1, 64), video.ID,
	}, video.Patch().Args()...)
	_, err := saveFinishedScript.Run(ctx, s.redis,
		[]string{videoKey(video.Owner, video.ID), videoIndexKey(video.Owner)}, args...,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to save finished video: %w", err)
	}
	return nil
}

// ListFinished returns the owner's finished videos, newest first.
func (s *JobStore) ListFinished(ctx context.Context, owner string, limit int) ([]*model.FinishedVideo, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	ids, err := s.redis.ZRevRange(ctx, videoIndexKey(owner), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list finished videos: %w", err)
	}
	if len(ids) == 0 {
		return []*model.FinishedVideo{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, videoKey(owner, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read finished videos: %w", err)
	}

	videos := make([]*model.FinishedVideo, 0, len(ids))
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		v, err := model.FinishedVideoFromHash(h)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, nil
}
