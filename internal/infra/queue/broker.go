package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
	red "profile-enrichment/internal/infra/redis"
)

// Broker owns all job state in redis. Lanes are independent lists; a job's
// lane never migrates. Job managers and workers issue commands against the
// broker, they never hold job state themselves.
type Broker struct {
	cli *redis.Client
	log *zerolog.Logger
}

func NewBroker(client *red.Client, logger *zerolog.Logger) *Broker {
	brokerLog := logger.With().Str("component", "Broker").Logger()
	return &Broker{cli: client.Redis(), log: &brokerLog}
}

func jobKey(id string) string                          { return "job:" + id }
func laneKey(lane model.JobPriority) string            { return "queue:" + string(lane) }
func finishedKey(lane model.JobPriority) string        { return "queue:" + string(lane) + ":finished" }
func counterKey(lane model.JobPriority, s string) string { return "queue:" + string(lane) + ":" + s + "_count" }
func workerKey(name string) string                     { return "worker:" + name }
func workerSetKey(lane model.JobPriority) string       { return "workers:" + string(lane) }

// Enqueue stores the job record and pushes its id onto the lane list.
func (b *Broker) Enqueue(ctx context.Context, job *model.Job) error {
	if err := b.cli.HSet(ctx, jobKey(job.ID), jobFields(job)).Err(); err != nil {
		return fmt.Errorf("store job record: %w", err)
	}
	if err := b.cli.LPush(ctx, laneKey(job.Priority), job.ID).Err(); err != nil {
		return fmt.Errorf("push job onto lane: %w", err)
	}
	b.log.Info().Str("job_id", job.ID).Str("lane", string(job.Priority)).Msg("job enqueued")
	return nil
}

// Fetch pops the oldest queued job from the lane and marks it started.
// Returns domain.ErrNotFound when the lane is empty. Cancelled records that
// escaped the cancel-time LREM are skipped here.
func (b *Broker) Fetch(ctx context.Context, lane model.JobPriority) (*model.Job, error) {
	for {
		id, err := b.cli.RPop(ctx, laneKey(lane)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("pop from lane: %w", err)
		}

		job, err := b.Job(ctx, id)
		if err != nil {
			b.log.Error().Err(err).Str("job_id", id).Msg("popped job has no record, dropping")
			continue
		}
		if job.Status != model.JobQueued {
			continue
		}

		now := time.Now().UTC()
		job.Status = model.JobStarted
		job.StartedAt = &now
		if err := b.cli.HSet(ctx, jobKey(id),
			"status", string(model.JobStarted),
			"started_at", now.Format(time.RFC3339Nano),
		).Err(); err != nil {
			return nil, fmt.Errorf("mark job started: %w", err)
		}
		return job, nil
	}
}

// Job loads one job record; domain.ErrNotFound when absent.
func (b *Broker) Job(ctx context.Context, id string) (*model.Job, error) {
	fields, err := b.cli.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job record: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return jobFromFields(id, fields)
}

// Complete finalizes a finished job: record becomes immutable apart from
// cleanup, the id moves to the lane's finished registry.
func (b *Broker) Complete(ctx context.Context, job *model.Job, result string) error {
	return b.finalize(ctx, job, model.JobFinished, result, "")
}

// Fail finalizes a failed job with its error.
func (b *Broker) Fail(ctx context.Context, job *model.Job, jobErr string) error {
	return b.finalize(ctx, job, model.JobFailed, "", jobErr)
}

func (b *Broker) finalize(ctx context.Context, job *model.Job, status model.JobStatus, result, jobErr string) error {
	now := time.Now().UTC()
	job.Status = status
	job.EndedAt = &now
	job.Result = result
	job.Error = jobErr

	pipe := b.cli.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID),
		"status", string(status),
		"ended_at", now.Format(time.RFC3339Nano),
		"result", result,
		"error", jobErr,
	)
	pipe.ZAdd(ctx, finishedKey(job.Priority), &redis.Z{Score: float64(now.Unix()), Member: job.ID})
	if status == model.JobFinished {
		pipe.Incr(ctx, counterKey(job.Priority, "finished"))
	} else {
		pipe.Incr(ctx, counterKey(job.Priority, "failed"))
	}
	if job.ResultTTL > 0 {
		pipe.Expire(ctx, jobKey(job.ID), job.ResultTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// cancelScript flips a queued job to cancelled and removes it from its lane
// in one atomic step; any other status leaves everything untouched.
var cancelScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "status") == "queued" then
	redis.call("HSET", KEYS[1], "status", "cancelled")
	redis.call("LREM", KEYS[2], 1, ARGV[1])
	return 1
else
	return 0
end`)

// Cancel succeeds only while the job is still queued. A cancelled record is
// terminal: it joins the lane's finished registry and expires with the same
// TTL as any other result, so cleanup treats it like finished/failed.
func (b *Broker) Cancel(ctx context.Context, id string) (bool, error) {
	job, err := b.Job(ctx, id)
	if err != nil {
		return false, err
	}
	n, err := cancelScript.Run(ctx, b.cli, []string{jobKey(id), laneKey(job.Priority)}, id).Int()
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	if n != 1 {
		return false, nil
	}

	now := time.Now().UTC()
	pipe := b.cli.TxPipeline()
	pipe.HSet(ctx, jobKey(id), "ended_at", now.Format(time.RFC3339Nano))
	pipe.ZAdd(ctx, finishedKey(job.Priority), &redis.Z{Score: float64(now.Unix()), Member: id})
	if job.ResultTTL > 0 {
		pipe.Expire(ctx, jobKey(id), job.ResultTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Error().Err(err).Str("job_id", id).Msg("cancel bookkeeping failed")
	}
	return true, nil
}

// Cleanup deletes terminal records (finished, failed, cancelled) older than
// the cutoff. Queued and started jobs are never registered here, so they are
// never touched.
func (b *Broker) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	removed := 0
	max := strconv.FormatInt(olderThan.Unix(), 10)
	for _, lane := range model.Priorities {
		ids, err := b.cli.ZRangeByScore(ctx, finishedKey(lane), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
		if err != nil {
			return removed, fmt.Errorf("scan finished registry %s: %w", lane, err)
		}
		for _, id := range ids {
			pipe := b.cli.TxPipeline()
			pipe.Del(ctx, jobKey(id))
			pipe.ZRem(ctx, finishedKey(lane), id)
			if _, err := pipe.Exec(ctx); err != nil {
				b.log.Error().Err(err).Str("job_id", id).Msg("cleanup delete failed")
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// LaneStats is one monitoring sample of a single lane.
type LaneStats struct {
	Depth     int           `json:"depth"`
	OldestAge time.Duration `json:"oldest_age"` // zero when the lane is empty
	Workers   int           `json:"workers"`
	Finished  int64         `json:"finished"`
	Failed    int64         `json:"failed"`
}

// Stats samples queue depth, oldest-enqueued age and cumulative counters.
func (b *Broker) Stats(ctx context.Context, lane model.JobPriority) (LaneStats, error) {
	var st LaneStats

	depth, err := b.cli.LLen(ctx, laneKey(lane)).Result()
	if err != nil {
		return st, fmt.Errorf("lane depth: %w", err)
	}
	st.Depth = int(depth)

	if depth > 0 {
		// RPop serves the tail, so the tail element is the oldest.
		if id, err := b.cli.LIndex(ctx, laneKey(lane), -1).Result(); err == nil {
			if job, err := b.Job(ctx, id); err == nil {
				st.OldestAge = time.Since(job.CreatedAt)
			}
		}
	}

	workers, err := b.cli.SCard(ctx, workerSetKey(lane)).Result()
	if err != nil {
		return st, fmt.Errorf("worker count: %w", err)
	}
	st.Workers = int(workers)

	st.Finished, _ = b.cli.Get(ctx, counterKey(lane, "finished")).Int64()
	st.Failed, _ = b.cli.Get(ctx, counterKey(lane, "failed")).Int64()
	return st, nil
}

// WorkerInfo is the broker's view of one registered worker.
type WorkerInfo struct {
	Name          string
	Lane          model.JobPriority
	State         string // "idle" | "busy"
	CurrentJob    string
	JobStartedAt  time.Time
	LastHeartbeat time.Time
}

func (b *Broker) RegisterWorker(ctx context.Context, name string, lane model.JobPriority) error {
	pipe := b.cli.TxPipeline()
	pipe.SAdd(ctx, workerSetKey(lane), name)
	pipe.HSet(ctx, workerKey(name),
		"lane", string(lane),
		"state", "idle",
		"last_heartbeat", time.Now().UTC().Format(time.RFC3339Nano),
	)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *Broker) DeregisterWorker(ctx context.Context, name string, lane model.JobPriority) error {
	pipe := b.cli.TxPipeline()
	pipe.SRem(ctx, workerSetKey(lane), name)
	pipe.Del(ctx, workerKey(name))
	_, err := pipe.Exec(ctx)
	return err
}

func (b *Broker) Heartbeat(ctx context.Context, name string) error {
	return b.cli.HSet(ctx, workerKey(name), "last_heartbeat", time.Now().UTC().Format(time.RFC3339Nano)).Err()
}

// SetWorkerState records what a worker is doing; jobID is empty when idle.
func (b *Broker) SetWorkerState(ctx context.Context, name, state, jobID string) error {
	fields := []interface{}{"state", state, "current_job", jobID}
	if state == "busy" {
		fields = append(fields, "job_started_at", time.Now().UTC().Format(time.RFC3339Nano))
	}
	return b.cli.HSet(ctx, workerKey(name), fields...).Err()
}

// Workers lists the registered workers of a lane with their health fields.
func (b *Broker) Workers(ctx context.Context, lane model.JobPriority) ([]WorkerInfo, error) {
	names, err := b.cli.SMembers(ctx, workerSetKey(lane)).Result()
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	out := make([]WorkerInfo, 0, len(names))
	for _, name := range names {
		fields, err := b.cli.HGetAll(ctx, workerKey(name)).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		w := WorkerInfo{
			Name:       name,
			Lane:       lane,
			State:      fields["state"],
			CurrentJob: fields["current_job"],
		}
		w.JobStartedAt, _ = time.Parse(time.RFC3339Nano, fields["job_started_at"])
		w.LastHeartbeat, _ = time.Parse(time.RFC3339Nano, fields["last_heartbeat"])
		out = append(out, w)
	}
	return out, nil
}

// ---- hash (de)serialization ----

func jobFields(j *model.Job) map[string]interface{} {
	args, _ := json.Marshal(j.Args)
	return map[string]interface{}{
		"kind":       string(j.Kind),
		"args":       string(args),
		"priority":   string(j.Priority),
		"status":     string(j.Status),
		"created_at": j.CreatedAt.Format(time.RFC3339Nano),
		"timeout":    j.Timeout.String(),
		"result_ttl": j.ResultTTL.String(),
	}
}

func jobFromFields(id string, fields map[string]string) (*model.Job, error) {
	j := &model.Job{
		ID:       id,
		Kind:     model.JobKind(fields["kind"]),
		Priority: model.JobPriority(fields["priority"]),
		Status:   model.JobStatus(fields["status"]),
		Result:   fields["result"],
		Error:    fields["error"],
	}
	if raw := fields["args"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &j.Args); err != nil {
			return nil, fmt.Errorf("unmarshal job args: %w", err)
		}
	}
	var err error
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if v := fields["started_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		j.StartedAt = &t
	}
	if v := fields["ended_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		j.EndedAt = &t
	}
	if v := fields["timeout"]; v != "" {
		j.Timeout, _ = time.ParseDuration(v)
	}
	if v := fields["result_ttl"]; v != "" {
		j.ResultTTL, _ = time.ParseDuration(v)
	}
	return j, nil
}
