package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-rod/rod"
	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/browser"
	"github.com/protocorn/launchway/internal/platform/logger"
	credentialService "github.com/protocorn/launchway/modules/credentials/service"
	"github.com/protocorn/launchway/modules/formfill/aimap"
	"github.com/protocorn/launchway/modules/formfill/coverletter"
	"github.com/protocorn/launchway/modules/formfill/detector"
	"github.com/protocorn/launchway/modules/formfill/expander"
	"github.com/protocorn/launchway/modules/formfill/fastmap"
	"github.com/protocorn/launchway/modules/formfill/interactor"
	ffmodel "github.com/protocorn/launchway/modules/formfill/model"
	"github.com/protocorn/launchway/modules/formfill/orchestrator"
	"github.com/protocorn/launchway/modules/formfill/recorder"
	"github.com/protocorn/launchway/modules/formfill/sensitive"
	"github.com/protocorn/launchway/modules/formfill/tracker"
	profileModel "github.com/protocorn/launchway/modules/profile/model"
	profileService "github.com/protocorn/launchway/modules/profile/service"
	rlmodel "github.com/protocorn/launchway/modules/ratelimit/model"
	rlservice "github.com/protocorn/launchway/modules/ratelimit/service"
	resumeService "github.com/protocorn/launchway/modules/resumes/service"
	"github.com/protocorn/launchway/modules/sessions/model"
	"github.com/protocorn/launchway/modules/sessions/ports"
	"github.com/protocorn/launchway/modules/vnc/coordinator"
	"github.com/protocorn/launchway/modules/vnc/fleet"
	vncmodel "github.com/protocorn/launchway/modules/vnc/model"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const submittedGrace = 5 * time.Second

// SessionService runs batches: for each slot it owns the navigate → fill →
// submit-or-park pipeline (the session orchestrator) and the sequential
// scheduling across a batch (the batch scheduler).
type SessionService struct {
	batches    ports.BatchRepository
	profiles   *profileService.ProfileService
	fleet      *fleet.Fleet
	limiter    *rlservice.Limiter
	actionLogs *recorder.ActionLogRepository
	creds      *credentialService.CredentialService

	det       *detector.Detector
	fast      *fastmap.Mapper
	sensitive *sensitive.Detector
	ai        *aimap.Mapper

	agentCfg  config.AgentConfig
	serverCfg config.ServerConfig
	log       *logger.Logger

	// sem bounds concurrent sessions across users on this host; the fleet
	// cap is the hard limit, this keeps headroom for interactive traffic.
	sem *semaphore.Weighted
}

// NewSessionService wires the per-host singletons together
func NewSessionService(
	batches ports.BatchRepository,
	profiles *profileService.ProfileService,
	fl *fleet.Fleet,
	limiter *rlservice.Limiter,
	actionLogs *recorder.ActionLogRepository,
	creds *credentialService.CredentialService,
	det *detector.Detector,
	fast *fastmap.Mapper,
	sens *sensitive.Detector,
	ai *aimap.Mapper,
	agentCfg config.AgentConfig,
	serverCfg config.ServerConfig,
	maxParallel int64,
	log *logger.Logger,
) *SessionService {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &SessionService{
		batches:    batches,
		profiles:   profiles,
		fleet:      fl,
		limiter:    limiter,
		actionLogs: actionLogs,
		creds:      creds,
		det:        det,
		fast:       fast,
		sensitive:  sens,
		ai:         ai,
		agentCfg:   agentCfg,
		serverCfg:  serverCfg,
		log:        log,
		sem:        semaphore.NewWeighted(maxParallel),
	}
}

// StartBatch validates the request, persists the batch, and begins
// sequential processing in the background.
func (s *SessionService) StartBatch(ctx context.Context, userID string, req *model.StartBatchRequest) (*model.Batch, error) {
	if len(req.JobURLs) == 0 {
		return nil, model.ErrEmptyBatch
	}
	if len(req.JobURLs) > s.agentCfg.MaxBatchURLs {
		return nil, model.ErrBatchTooLarge
	}
	for _, raw := range req.JobURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: %s", model.ErrInvalidURL, raw)
		}
	}

	batch := &model.Batch{UserID: userID}
	for i, jobURL := range req.JobURLs {
		slot := &model.JobSlot{JobURL: jobURL}
		if i < len(req.TailorResume) {
			slot.TailorResume = req.TailorResume[i]
		}
		batch.Slots = append(batch.Slots, slot)
	}
	if err := s.batches.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	if err := s.limiter.Consume(ctx, rlmodel.LimitApplicationsPerUserDay, userID, len(req.JobURLs)); err != nil {
		s.log.Warn("application usage accounting failed", zap.Error(err))
	}

	go s.processBatch(context.Background(), userID, batch.ID)
	return batch, nil
}

// processBatch runs the batch's slots sequentially. Sequential by design:
// it keeps VNC ports and browser processes within budget and serializes
// LLM quota pressure per user.
func (s *SessionService) processBatch(ctx context.Context, userID, batchID string) {
	log := s.log.WithUserID(userID).WithBatch(batchID)

	batch, err := s.batches.GetBatch(ctx, userID, batchID)
	if err != nil {
		log.Error("batch vanished before processing", zap.Error(err))
		return
	}

	for _, slot := range batch.Slots {
		if slot.Status.Terminal() {
			continue
		}
		s.runSlot(ctx, userID, slot, log)
	}

	if err := s.batches.UpdateBatchStatus(ctx, batchID, model.BatchDone); err != nil {
		log.Warn("batch status update failed", zap.Error(err))
	}
}

// runSlot is the session orchestrator for one job URL
func (s *SessionService) runSlot(ctx context.Context, userID string, slot *model.JobSlot, log *logger.Logger) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.failSlot(ctx, slot, "cancelled before start", log)
		return
	}
	defer s.sem.Release(1)

	member, err := s.limiter.Acquire(ctx, rlmodel.LimitConcurrentSessions, userID)
	if err != nil {
		s.failSlot(ctx, slot, "concurrent session limit reached", log)
		return
	}
	defer s.limiter.ReleaseSlot(ctx, rlmodel.LimitConcurrentSessions, userID, member)

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		s.failSlot(ctx, slot, "profile unavailable: "+err.Error(), log)
		return
	}

	s.updateSlot(ctx, slot, model.SlotStarting, 5, "", log)

	coord, resumePath, err := s.fleet.Acquire(ctx, userID, slot.JobURL, func(home string) (string, error) {
		return s.profiles.Resolve(ctx, profile, home)
	})
	if err != nil {
		s.failSlot(ctx, slot, "session resources unavailable: "+err.Error(), log)
		return
	}
	slot.VNCSessionID = coord.SessionID
	s.updateSlot(ctx, slot, model.SlotStarting, 15, "", log)

	rec := recorder.New()
	outcome := s.driveSession(ctx, coord, userID, profile, slot, resumePath, rec, log)

	completed := outcome == model.SlotSubmitted || outcome == model.SlotFailed
	if err := s.actionLogs.Save(ctx, userID, slot.ID, rec.All(), completed); err != nil {
		log.Warn("action log persistence failed", zap.Error(err))
	}

	switch outcome {
	case model.SlotSubmitted:
		s.updateSlot(ctx, slot, model.SlotSubmitted, 100, "", log)
		time.Sleep(submittedGrace)
		s.fleet.Close(ctx, coord.SessionID, vncmodel.StatusClosed)
	case model.SlotReadyForReview:
		// The browser and VNC stream stay alive; the user finishes by hand.
		s.updateSlot(ctx, slot, model.SlotReadyForReview, 90, slot.Error, log)
	default:
		s.fleet.Close(ctx, coord.SessionID, vncmodel.StatusFailed)
		s.updateSlot(ctx, slot, model.SlotFailed, slot.Progress, slot.Error, log)
	}
}

// driveSession navigates and fills; returns the slot's terminal intent.
// slot.Error carries the human-readable reason for review/failure states.
func (s *SessionService) driveSession(ctx context.Context, coord *coordinator.Coordinator, userID string, profile *profileModel.ProfileView, slot *model.JobSlot, resumePath string, rec *recorder.Recorder, log *logger.Logger) model.SlotStatus {
	page := coord.Page()

	if err := browser.Navigate(page, slot.JobURL, 60*time.Second); err != nil {
		rec.Record(ffmodel.ActionRecord{Kind: ffmodel.ActionNavigate, Value: slot.JobURL, Success: false, Error: err.Error()})
		slot.Error = "navigation failed"
		s.captureFailure(userID, slot, err)
		return model.SlotFailed
	}
	rec.Record(ffmodel.ActionRecord{Kind: ffmodel.ActionNavigate, Value: slot.JobURL, Success: true})

	if detectCaptcha(page) {
		slot.Error = "captcha detected"
		return model.SlotReadyForReview
	}
	if detectLoginWall(page) {
		// A stored portal credential lets automation pass the wall; without
		// one the user takes over in the viewer.
		if !s.tryStoredLogin(ctx, page, userID, slot.JobURL, rec, log) {
			slot.Error = "login required"
			return model.SlotReadyForReview
		}
	}

	if !hasFormFields(page) {
		if clickEntryAction(page) {
			rec.Record(ffmodel.ActionRecord{Kind: ffmodel.ActionClick, Value: "apply", Success: true})
		}
		if detectCaptcha(page) {
			slot.Error = "captcha detected"
			return model.SlotReadyForReview
		}
		if !hasFormFields(page) {
			// A page that should carry a form but doesn't is a human call,
			// not a failure.
			slot.Error = "no form detected"
			return model.SlotReadyForReview
		}
	}

	s.updateSlot(ctx, slot, model.SlotFilling, 30, "", log)

	jobContext := s.buildJobContext(page, resumePath, log)

	ic := interactor.New(s.det, rec, interactor.Config{
		MaxRetries:          s.agentCfg.MaxRetries,
		SettleWait:          s.agentCfg.SettleWait,
		SkillMatchThreshold: s.agentCfg.SkillMatchThreshold,
		MaxSkills:           s.agentCfg.MaxSkills,
	}, log)
	exp := expander.New(s.agentCfg.SettleWait, log)
	trk := tracker.New(browser.CurrentURL(page), s.agentCfg.MaxRetries)
	orch := orchestrator.New(s.det, s.sensitive, s.fast, s.ai, ic, exp,
		orchestrator.Config{MaxPasses: s.agentCfg.MaxPasses}, log)

	result, err := orch.Run(ctx, page, userID, profile, trk, jobContext)
	if err != nil {
		slot.Error = "form filling failed"
		s.captureFailure(userID, slot, err)
		return model.SlotFailed
	}

	s.updateSlot(ctx, slot, model.SlotFilling, 70, "", log)
	s.uploadAttachments(ctx, page, coord, profile, resumePath, ic, trk, log)

	// Quota exhaustion alone does not park the session: with every
	// required field resolved, leftover optional fields still submit.
	switch {
	case result.SensitiveHeld > 0:
		slot.Error = "sensitive fields require your input"
		return model.SlotReadyForReview
	case result.RequiredUnresolved:
		if result.LLMDeferred {
			slot.Error = "model quota exhausted before completion"
		} else {
			slot.Error = "required fields could not be resolved"
		}
		return model.SlotReadyForReview
	}

	clicked, submitted := attemptSubmit(page)
	rec.Record(ffmodel.ActionRecord{Kind: ffmodel.ActionSubmit, Success: submitted})
	if clicked && submitted {
		return model.SlotSubmitted
	}
	slot.Error = "submission could not be confirmed"
	return model.SlotReadyForReview
}

// tryStoredLogin fills a matching stored credential into the login form
// and reports whether the wall was passed.
func (s *SessionService) tryStoredLogin(ctx context.Context, page *rod.Page, userID, jobURL string, rec *recorder.Recorder, log *logger.Logger) bool {
	if s.creds == nil {
		return false
	}
	cred, err := s.creds.LookupForURL(ctx, userID, jobURL)
	if err != nil {
		return false
	}
	if !fillLoginForm(page, cred.Username, cred.Password) {
		return false
	}
	rec.Record(ffmodel.ActionRecord{Kind: ffmodel.ActionFill, StableID: "login", Value: cred.Username, Success: true})
	browser.WaitSettled(page, 5*time.Second)
	passed := !detectLoginWall(page)
	if passed {
		log.Info("login wall passed with stored credential", zap.String("host", cred.CompanyHost))
	}
	return passed
}

// uploadAttachments uploads the resume (and, when a template exists, a
// rendered cover letter) into matching file inputs not yet handled.
func (s *SessionService) uploadAttachments(ctx context.Context, page *rod.Page, coord *coordinator.Coordinator, profile *profileModel.ProfileView, resumePath string, ic *interactor.Interactor, trk *tracker.Tracker, log *logger.Logger) {
	descriptors, err := s.det.Scan(page)
	if err != nil {
		return
	}

	var coverPath string
	for _, d := range descriptors {
		if d.Category != ffmodel.CategoryFileUpload || trk.Succeeded(d.StableID) {
			continue
		}
		label := strings.ToLower(d.Label + " " + d.Placeholder + " " + d.StableID)
		switch {
		case resumePath != "" && (strings.Contains(label, "resume") || strings.Contains(label, "cv")):
			if err := ic.Fill(ctx, page, d, ffmodel.Simple(resumePath)); err != nil {
				trk.Record(d.StableID, ffmodel.StatusFailed, resumePath)
			} else {
				trk.Record(d.StableID, ffmodel.StatusSucceeded, resumePath)
			}
		case strings.Contains(label, "cover letter"):
			if profile.CoverLetterTemplate == "" {
				continue
			}
			if coverPath == "" {
				coverPath, err = coverletter.Render(profile, coverletter.Context{
					Company: pageCompany(page),
					Role:    pageTitle(page),
				}, coord.Allocation.SandboxHome)
				if err != nil {
					log.Debug("cover letter rendering failed", zap.Error(err))
					continue
				}
			}
			if err := ic.Fill(ctx, page, d, ffmodel.Simple(coverPath)); err != nil {
				trk.Record(d.StableID, ffmodel.StatusFailed, coverPath)
			} else {
				trk.Record(d.StableID, ffmodel.StatusSucceeded, coverPath)
			}
		}
	}
}

// buildJobContext gathers page title/description plus resume text for the
// essay prompts. Best effort everywhere.
func (s *SessionService) buildJobContext(page *rod.Page, resumePath string, log *logger.Logger) string {
	var sb strings.Builder
	if title := pageTitle(page); title != "" {
		sb.WriteString("Job: " + title + "\n")
	}
	res, err := page.Eval(`() => {
		const m = document.querySelector('meta[name="description"]');
		const h = document.querySelector('h1');
		return ((h ? h.innerText + '. ' : '') + (m ? m.content : '')).slice(0, 1500);
	}`)
	if err == nil {
		if desc := strings.TrimSpace(res.Value.Str()); desc != "" {
			sb.WriteString(desc + "\n")
		}
	}
	if resumePath != "" {
		if text, err := resumeService.ExtractResumeText(resumePath); err == nil {
			sb.WriteString("Applicant resume:\n" + text)
		} else {
			log.Debug("resume text extraction skipped", zap.Error(err))
		}
	}
	return sb.String()
}

func pageTitle(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(info.Title)
}

func pageCompany(page *rod.Page) string {
	res, err := page.Eval(`() => {
		const m = document.querySelector('meta[property="og:site_name"]');
		return m ? m.content : '';
	}`)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(res.Value.Str())
}

// Status builds the poll payload for one batch
func (s *SessionService) Status(ctx context.Context, userID, batchID string) (*model.BatchStatusResponse, error) {
	batch, err := s.batches.GetBatch(ctx, userID, batchID)
	if err != nil {
		return nil, err
	}

	resp := &model.BatchStatusResponse{
		BatchID: batch.ID,
		Status:  batch.Status,
		Total:   len(batch.Slots),
	}
	for _, slot := range batch.Slots {
		view := model.SlotView{
			JobID:    slot.ID,
			JobURL:   slot.JobURL,
			Status:   slot.Status,
			Progress: slot.Progress,
			Error:    slot.Error,
		}
		switch slot.Status {
		case model.SlotSubmitted, model.SlotCompleted:
			resp.Completed++
		case model.SlotReadyForReview:
			resp.ReadyForReview++
			if slot.VNCSessionID != "" {
				view.VNCViewerURL = s.viewerURL(slot.VNCSessionID)
			}
			view.LastActions = s.lastActions(ctx, userID, slot.ID)
		case model.SlotFailed:
			resp.Failed++
			view.LastActions = s.lastActions(ctx, userID, slot.ID)
		case model.SlotQueued:
			resp.Queued++
		default:
			resp.InProgress++
		}
		resp.Slots = append(resp.Slots, view)
	}
	return resp, nil
}

// lastActions fetches the redacted tail of a slot's action log
func (s *SessionService) lastActions(ctx context.Context, userID, slotID string) []ffmodel.ActionRecord {
	if s.actionLogs == nil {
		return nil
	}
	records, _, err := s.actionLogs.Get(ctx, userID, slotID)
	if err != nil {
		return nil
	}
	return recorder.RedactTail(records, 5)
}

func (s *SessionService) viewerURL(sessionID string) string {
	scheme := "ws"
	if s.serverCfg.Env == "production" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/vnc-stream/%s", scheme, s.serverCfg.Host, sessionID)
}

// MarkSubmitted records a user's manual submission of a parked slot
func (s *SessionService) MarkSubmitted(ctx context.Context, userID, batchID, slotID string) error {
	if _, err := s.batches.GetBatch(ctx, userID, batchID); err != nil {
		return err
	}
	slot, err := s.batches.GetSlot(ctx, batchID, slotID)
	if err != nil {
		return err
	}
	if slot.Status != model.SlotReadyForReview {
		return model.ErrSlotNotReviewable
	}

	slot.Status = model.SlotCompleted
	slot.Progress = 100
	slot.Error = ""
	if err := s.batches.UpdateSlot(ctx, slot); err != nil {
		return err
	}

	if slot.VNCSessionID != "" {
		s.fleet.Close(ctx, slot.VNCSessionID, vncmodel.StatusClosed)
	}
	if err := s.actionLogs.MarkCompleted(ctx, userID, slot.ID); err != nil {
		s.log.Warn("action log completion flag failed", zap.Error(err))
	}
	return nil
}

// CloseBatch terminates every open session of a batch and closes it
func (s *SessionService) CloseBatch(ctx context.Context, userID, batchID string) error {
	batch, err := s.batches.GetBatch(ctx, userID, batchID)
	if err != nil {
		return err
	}
	if batch.Status == model.BatchClosed {
		return model.ErrBatchClosed
	}

	for _, slot := range batch.Slots {
		if slot.VNCSessionID != "" {
			s.fleet.Close(ctx, slot.VNCSessionID, vncmodel.StatusClosed)
		}
		if !slot.Status.Terminal() {
			slot.Status = model.SlotFailed
			slot.Error = "batch closed"
			_ = s.batches.UpdateSlot(ctx, slot)
		}
	}
	return s.batches.UpdateBatchStatus(ctx, batchID, model.BatchClosed)
}

func (s *SessionService) updateSlot(ctx context.Context, slot *model.JobSlot, status model.SlotStatus, progress int, errMsg string, log *logger.Logger) {
	slot.Status = status
	slot.Progress = progress
	slot.Error = errMsg
	if err := s.batches.UpdateSlot(ctx, slot); err != nil {
		log.Warn("slot update failed", zap.String("slot_id", slot.ID), zap.Error(err))
	}
}

func (s *SessionService) failSlot(ctx context.Context, slot *model.JobSlot, reason string, log *logger.Logger) {
	slot.Status = model.SlotFailed
	slot.Error = reason
	if err := s.batches.UpdateSlot(ctx, slot); err != nil {
		log.Warn("slot update failed", zap.String("slot_id", slot.ID), zap.Error(err))
	}
	log.Warn("slot failed", zap.String("slot_id", slot.ID), zap.String("reason", reason))
}

func (s *SessionService) captureFailure(userID string, slot *model.JobSlot, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: userID})
		scope.SetTag("job_url", slot.JobURL)
		scope.SetTag("slot_id", slot.ID)
		sentry.CaptureException(err)
	})
}
