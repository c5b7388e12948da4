package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profile-enrichment/internal/config"
	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/domain/ports/adapter"
	"profile-enrichment/internal/domain/ports/repository"
	"profile-enrichment/internal/infra/metrics"
)

// Compile-time check
var _ WorkflowEngine = (*engine)(nil)

// Enqueuer is the slice of the job manager the engine needs: hand a task to
// a lane and get the job record back.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind model.JobKind, args map[string]string, priority model.JobPriority) (*model.Job, error)
}

// WorkflowEngine drives the enrichment state machine. Every transition is
// read-latest, execute-stage, append-snapshot; concurrent writers are caught
// by the store's version-conflict check and re-derive from the fresh latest.
type WorkflowEngine interface {
	Submit(ctx context.Context, taskDescription string, limit int, priority model.JobPriority) (*model.Session, *model.Job, error)
	RunSession(ctx context.Context, sessionID string) (*model.MergedResult, error)
	Latest(ctx context.Context, sessionID string) (*model.Session, error)
	History(ctx context.Context, sessionID string) ([]*model.Session, error)
}

type engine struct {
	store    repository.SessionStore
	resolver adapter.RepositoryResolver
	codehost adapter.CodeHostAdapter
	social   adapter.SocialProfileAdapter
	notifier adapter.CompletionNotifier
	jobs     Enqueuer
	cfg      config.WorkflowConfig
	run      StageFunc
	log      *zerolog.Logger
}

func NewWorkflowEngine(
	store repository.SessionStore,
	resolver adapter.RepositoryResolver,
	codehost adapter.CodeHostAdapter,
	social adapter.SocialProfileAdapter,
	notifier adapter.CompletionNotifier,
	jobs Enqueuer,
	cfg config.WorkflowConfig,
	logger *zerolog.Logger,
	interceptors ...StageInterceptor,
) *engine {
	engLog := logger.With().Str("component", "WorkflowEngine").Logger()
	e := &engine{
		store:    store,
		resolver: resolver,
		codehost: codehost,
		social:   social,
		notifier: notifier,
		jobs:     jobs,
		cfg:      cfg,
		log:      &engLog,
	}
	e.run = Chain(e.executeStage, interceptors...)
	return e
}

// Submit validates the request, persists the version-0 snapshot and queues
// the run. Validation failures never create a session.
func (e *engine) Submit(ctx context.Context, taskDescription string, limit int, priority model.JobPriority) (*model.Session, *model.Job, error) {
	taskDescription = strings.TrimSpace(taskDescription)
	if taskDescription == "" {
		return nil, nil, fmt.Errorf("task description is empty: %w", domain.ErrInvalidArgument)
	}
	if limit < 1 || limit > 100 {
		return nil, nil, fmt.Errorf("limit %d out of range 1..100: %w", limit, domain.ErrInvalidArgument)
	}

	session, err := model.NewSession(uuid.NewString(), taskDescription, limit, e.cfg.SessionTTL)
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.Append(ctx, session); err != nil {
		return nil, nil, err
	}

	job, err := e.jobs.Enqueue(ctx, model.JobKindRunWorkflow, map[string]string{"session_id": session.SessionID}, priority)
	if err != nil {
		e.log.Error().Err(err).Str("session_id", session.SessionID).Msg("failed to enqueue workflow job")
		return nil, nil, err
	}
	e.log.Info().Str("session_id", session.SessionID).Str("job_id", job.ID).
		Str("priority", string(job.Priority)).Msg("enrichment submitted")
	return session, job, nil
}

func (e *engine) Latest(ctx context.Context, sessionID string) (*model.Session, error) {
	return e.store.Latest(ctx, sessionID)
}

func (e *engine) History(ctx context.Context, sessionID string) ([]*model.Session, error) {
	return e.store.History(ctx, sessionID)
}

// conflictRetries bounds how often one run re-derives after losing an append
// race before giving up; retry beyond that belongs to the job layer.
const conflictRetries = 3

// RunSession advances the session until it reaches a terminal snapshot.
// Stage failures mark the session Failed; only store errors are returned
// without a terminal snapshot.
func (e *engine) RunSession(ctx context.Context, sessionID string) (*model.MergedResult, error) {
	conflicts := 0
	for {
		cur, err := e.store.Latest(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if cur.Terminal() {
			return cur.Outputs.Merged, nil
		}
		stage, ok := cur.NextStage()
		if !ok {
			return cur.Outputs.Merged, nil
		}

		next := cur.Next()
		sc := &StageContext{SessionID: sessionID, Stage: stage, Version: cur.Version}
		if err := e.run(ctx, sc, cur, next); err != nil {
			return nil, e.failSession(ctx, cur, stage, err)
		}

		if err := e.store.Append(ctx, next); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) && conflicts < conflictRetries {
				conflicts++
				e.log.Warn().Str("session_id", sessionID).Int64("version", next.Version).
					Int("attempt", conflicts).Msg("lost append race, re-deriving from latest")
				continue
			}
			return nil, err
		}

		if next.Status == model.SessionCompleted {
			metrics.IncSessionTerminal(string(model.SessionCompleted))
			e.notifyCompleted(ctx, next)
			return next.Outputs.Merged, nil
		}
	}
}

// executeStage is the innermost StageFunc; routing is an exhaustive switch
// over the closed stage set.
func (e *engine) executeStage(ctx context.Context, sc *StageContext, cur, next *model.Session) error {
	switch sc.Stage {
	case StageResolve:
		return e.resolveRepository(ctx, cur, next)
	case StageFetchPrimary:
		return e.fetchContributors(ctx, cur, next)
	case StageEnrichSecondary:
		return e.enrichSocial(ctx, cur, next)
	case StageMerge:
		return e.merge(ctx, cur, next)
	default:
		return fmt.Errorf("stage %q: %w", sc.Stage, domain.ErrUnknownStage)
	}
}

// Local aliases keep the switch readable.
const (
	StageResolve         = model.StageResolveRepository
	StageFetchPrimary    = model.StageFetchContributors
	StageEnrichSecondary = model.StageEnrichSocial
	StageMerge           = model.StageMerge
)

func (e *engine) resolveRepository(ctx context.Context, cur, next *model.Session) error {
	repo, err := e.resolver.Resolve(ctx, cur.TaskDescription())
	if err != nil {
		// A malformed identifier is the caller's problem, not the provider's;
		// keep the validation sentinel instead of relabeling it upstream.
		if errors.Is(err, domain.ErrInvalidArgument) {
			return fmt.Errorf("repository resolution: %w", err)
		}
		return fmt.Errorf("repository resolution: %v: %w", err, domain.ErrUpstream)
	}
	repo = strings.TrimSpace(repo)
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("malformed repository identifier %q, expected owner/repo: %w", repo, domain.ErrInvalidArgument)
	}

	next.Outputs.Resolution = &model.ResolutionResult{Repository: repo}
	next.AddMessage(fmt.Sprintf("resolved target repository %s", repo), model.MessageStage,
		map[string]string{"stage": string(StageResolve)})
	return nil
}

func (e *engine) fetchContributors(ctx context.Context, cur, next *model.Session) error {
	repo := cur.Outputs.Resolution.Repository

	valid, err := e.codehost.ValidateRepository(ctx, repo)
	if err != nil {
		return fmt.Errorf("repository validation: %v: %w", err, domain.ErrUpstream)
	}
	if !valid {
		return fmt.Errorf("repository %s not found or not accessible: %w", repo, domain.ErrNotFound)
	}

	contributors, err := e.codehost.FetchContributors(ctx, repo, cur.Limit)
	if err != nil {
		return fmt.Errorf("contributor fetch: %v: %w", err, domain.ErrUpstream)
	}

	next.Outputs.Primary = &model.ContributorBatch{
		Repository:   repo,
		Total:        len(contributors),
		Contributors: contributors,
	}
	next.AddMessage(fmt.Sprintf("fetched %d contributors from %s", len(contributors), repo), model.MessageStage,
		map[string]string{"stage": string(StageFetchPrimary)})
	return nil
}

// enrichSocial fans out one lookup per contributor: a known profile URL uses
// the direct path, everyone with a usable name takes the fallback search.
// Each lookup is fault-isolated; a failure degrades that one entity.
func (e *engine) enrichSocial(ctx context.Context, cur, next *model.Session) error {
	batch := cur.Outputs.Primary

	enrichable := 0
	for i := range batch.Contributors {
		c := &batch.Contributors[i]
		if _, ok := c.LinkedInURL(); ok {
			enrichable++
		} else if c.Name != "" {
			enrichable++
		}
	}
	if enrichable == 0 {
		// Persist the skip explicitly; it is never inferred after the fact.
		next.Outputs.Secondary = &model.SocialBatch{Skipped: true}
		next.AddMessage("social enrichment skipped: no contributor carried a resolvable reference", model.MessageStage,
			map[string]string{"stage": string(StageEnrichSecondary), "skipped": "true"})
		return nil
	}

	lookups := make([]model.SocialLookup, len(batch.Contributors))
	var wg sync.WaitGroup
	for i := range batch.Contributors {
		c := batch.Contributors[i]
		wg.Add(1)
		go func(i int, c model.Contributor) {
			defer wg.Done()
			lookups[i] = e.lookupOne(ctx, c)
		}(i, c)
	}
	wg.Wait()

	successful := 0
	for i := range lookups {
		if lookups[i].Profile != nil {
			successful++
		}
	}
	next.Outputs.Secondary = &model.SocialBatch{
		Total:      len(lookups),
		Successful: successful,
		Lookups:    lookups,
	}
	next.AddMessage(fmt.Sprintf("social enrichment finished: %d/%d profiles", successful, len(lookups)), model.MessageStage,
		map[string]string{"stage": string(StageEnrichSecondary)})
	return nil
}

// lookupOne never lets one entity's failure escape: errors and panics are
// recorded on the lookup and the rest of the batch proceeds.
func (e *engine) lookupOne(ctx context.Context, c model.Contributor) (lk model.SocialLookup) {
	lk.Username = c.Username

	defer func() {
		if r := recover(); r != nil {
			lk.Profile = nil
			lk.Error = fmt.Sprintf("lookup panicked: %v", r)
			e.log.Error().Str("username", c.Username).Interface("panic", r).Msg("social lookup panicked")
		}
	}()

	if url, ok := c.LinkedInURL(); ok {
		lk.URL = url
		profile, err := e.social.FetchByURL(ctx, url)
		if err != nil {
			lk.Error = err.Error()
			metrics.IncSecondaryLookup("direct", "error")
			return lk
		}
		lk.Profile = profile
		metrics.IncSecondaryLookup("direct", "ok")
		return lk
	}

	if c.Name == "" {
		lk.Error = "no profile reference and no name to search by"
		return lk
	}

	lk.Fallback = true
	profile, err := e.social.SearchByName(ctx, c.Name)
	if err != nil {
		lk.Error = err.Error()
		metrics.IncSecondaryLookup("fallback", "error")
		return lk
	}
	lk.Profile = profile
	metrics.IncSecondaryLookup("fallback", "ok")
	return lk
}

// merge joins secondary results onto primaries in original fetch order.
// Direct lookups join by the original profile URL; fallback lookups by the
// username they were issued for. Positional index is never the key.
func (e *engine) merge(ctx context.Context, cur, next *model.Session) error {
	primary := cur.Outputs.Primary
	secondary := cur.Outputs.Secondary

	byURL := make(map[string]*model.SocialProfile)
	byUser := make(map[string]*model.SocialProfile)
	if secondary != nil && !secondary.Skipped {
		for i := range secondary.Lookups {
			lk := &secondary.Lookups[i]
			if lk.Profile == nil {
				continue
			}
			if lk.Fallback {
				byUser[lk.Username] = lk.Profile
			} else {
				byURL[lk.URL] = lk.Profile
			}
		}
	}

	entities := make([]model.MergedEntity, 0, len(primary.Contributors))
	withSecondary := 0
	for i := range primary.Contributors {
		c := &primary.Contributors[i]
		entity := model.MergedEntity{
			Primary: model.PrimaryInfo{
				Username:      c.Username,
				URL:           c.ProfileURL,
				Contributions: c.Contributions,
				Email:         c.Email,
			},
			Name:       c.Name,
			SocialURLs: cloneURLs(c.SocialURLs),
		}

		var profile *model.SocialProfile
		if url, ok := c.LinkedInURL(); ok {
			profile = byURL[url]
		} else if p, ok := byUser[c.Username]; ok {
			profile = p
			// The fallback search discovered a reference we did not have.
			if entity.SocialURLs == nil {
				entity.SocialURLs = map[string]string{}
			}
			entity.SocialURLs["linkedin"] = p.ProfileURL
		}
		if profile != nil {
			entity.Secondary = &model.SecondaryInfo{
				URL:             profile.ProfileURL,
				CurrentPosition: profile.CurrentPosition,
				Company:         profile.Company,
				Location:        profile.Location,
			}
			if entity.Name == "" {
				entity.Name = profile.Name
			}
			withSecondary++
		}
		entities = append(entities, entity)
	}

	next.Outputs.Merged = &model.MergedResult{
		TargetName:         primary.Repository,
		TotalEntities:      len(entities),
		TotalWithSecondary: withSecondary,
		Entities:           entities,
	}
	next.Status = model.SessionCompleted
	next.AddMessage(fmt.Sprintf("workflow completed: %d entities, %d with secondary data", len(entities), withSecondary),
		model.MessageSystem, map[string]string{"stage": string(StageMerge), "status": string(model.SessionCompleted)})
	return nil
}

// failSession appends the terminal Failed snapshot carrying the taxonomy
// category and the verbatim stage error.
func (e *engine) failSession(ctx context.Context, cur *model.Session, stage model.Stage, stageErr error) error {
	category := domain.CategoryOf(stageErr)
	next := cur.Next()
	next.Status = model.SessionFailed
	next.AddMessage(stageErr.Error(), model.MessageSystem, map[string]string{
		"stage":    string(stage),
		"category": string(category),
		"status":   string(model.SessionFailed),
	})
	if err := e.store.Append(ctx, next); err != nil {
		e.log.Error().Err(err).Str("session_id", cur.SessionID).Msg("failed to persist terminal failure snapshot")
		return err
	}
	metrics.IncSessionTerminal(string(model.SessionFailed))
	if e.notifier != nil {
		if err := e.notifier.NotifyFailed(ctx, cur.SessionID, string(category), stageErr.Error()); err != nil {
			e.log.Warn().Err(err).Str("session_id", cur.SessionID).Msg("failure notification not delivered")
		}
	}
	return fmt.Errorf("session %s failed at stage %s: %w", cur.SessionID, stage, stageErr)
}

func (e *engine) notifyCompleted(ctx context.Context, s *model.Session) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyCompleted(ctx, s.SessionID, s.Outputs.Merged); err != nil {
		e.log.Warn().Err(err).Str("session_id", s.SessionID).Msg("completion notification not delivered")
	}
}

func cloneURLs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RegisterTask binds the engine's workflow task to a worker task registry.
// The job result is the marshalled merged payload.
type TaskRegistry interface {
	Register(kind model.JobKind, fn func(ctx context.Context, args map[string]string) (any, error))
}

func (e *engine) RegisterTask(reg TaskRegistry) {
	reg.Register(model.JobKindRunWorkflow, func(ctx context.Context, args map[string]string) (any, error) {
		sessionID := args["session_id"]
		if sessionID == "" {
			return nil, fmt.Errorf("missing session_id argument: %w", domain.ErrInvalidArgument)
		}
		result, err := e.RunSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}
