package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blog-comment-api/internal/cache"
	"github.com/blog-comment-api/internal/config"
	"github.com/blog-comment-api/internal/identifier"
	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/notify"
	"github.com/blog-comment-api/internal/oauth"
	"github.com/blog-comment-api/internal/repository"
	"github.com/blog-comment-api/internal/validation"
)

// beginAttempts bounds re-rolls when a freshly generated token or placeholder
// id loses an insert race.
const beginAttempts = 3

// publishRetries bounds re-derivations when a derived comment id loses an
// insert race after the existence probe said it was free.
const publishRetries = 3

// commentService is the concrete implementation of CommentService
type commentService struct {
	repos     *repository.Repositories
	gen       *identifier.Generator
	provider  oauth.Provider
	cache     cache.CommentCache
	notifier  notify.Notifier
	validator *validation.Validator
	cfg       *config.Config
	log       zerolog.Logger
}

// newCommentService creates a new CommentService
func newCommentService(
	repos *repository.Repositories,
	gen *identifier.Generator,
	provider oauth.Provider,
	commentCache cache.CommentCache,
	notifier notify.Notifier,
	validator *validation.Validator,
	cfg *config.Config,
	log zerolog.Logger,
) *commentService {
	return &commentService{
		repos:     repos,
		gen:       gen,
		provider:  provider,
		cache:     commentCache,
		notifier:  notifier,
		validator: validator,
		cfg:       cfg,
		log:       log.With().Str("service", "comment").Logger(),
	}
}

// reap removes expired pending actions. Invoked at every entry point instead
// of a background timer; failure never aborts the entry operation.
func (s *commentService) reap(ctx context.Context) {
	reaped, err := s.repos.Comments.ReapExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to reap expired actions")
		return
	}
	if reaped > 0 {
		s.log.Debug().Int64("reaped", reaped).Msg("Reaped expired actions")
	}
}

// BeginCreate opens a pending create action and returns the authorize URL the
// widget navigates to.
func (s *commentService) BeginCreate(ctx context.Context, req *models.BeginCommentRequest) (*models.BeginActionResponse, error) {
	if err := s.validator.ValidatePostID(req.PostID); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateReturnURL(req.ReturnURL); err != nil {
		return nil, err
	}

	s.reap(ctx)

	var token string
	for attempt := 0; attempt < beginAttempts; attempt++ {
		candidate, err := s.gen.NewRandom(ctx, s.repos.Comments.TokenExists)
		if err != nil {
			return nil, models.NewStoreFailure(err)
		}
		placeholder, err := s.gen.NewRandom(ctx, s.repos.Comments.IDExists)
		if err != nil {
			return nil, models.NewStoreFailure(err)
		}

		err = s.repos.Comments.InsertPending(ctx, placeholder, candidate, s.cfg.Comments.WindowMinutes)
		if err == nil {
			token = candidate
			break
		}
		if !repository.IsUniqueViolation(err) {
			return nil, models.NewStoreFailure(err)
		}
		// Lost an insert race despite the probe; re-roll both values.
	}
	if token == "" {
		return nil, models.NewStoreFailure(errors.New("could not allocate a unique pending action"))
	}

	returnURL := s.resolveReturnURL(req.ReturnURL)
	redirectURI := s.callbackURL(models.ActionCreate, req.PostID, "", returnURL)

	s.log.Info().
		Str("post_id", req.PostID).
		Str("state", token).
		Msg("Pending create opened")

	return &models.BeginActionResponse{
		AuthorizeURL: s.provider.AuthorizeURL(token, redirectURI),
		State:        token,
	}, nil
}

// BeginEdit stamps a mutation claim on a published comment for the edit flow.
func (s *commentService) BeginEdit(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error) {
	return s.beginMutation(ctx, models.ActionEdit, commentID, req)
}

// BeginDelete stamps a mutation claim on a published comment for the delete
// flow.
func (s *commentService) BeginDelete(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error) {
	return s.beginMutation(ctx, models.ActionDelete, commentID, req)
}

func (s *commentService) beginMutation(ctx context.Context, action models.CommentAction, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error) {
	if err := s.validator.ValidateCommentID(commentID); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateReturnURL(req.ReturnURL); err != nil {
		return nil, err
	}

	s.reap(ctx)

	var token string
	for attempt := 0; attempt < beginAttempts; attempt++ {
		candidate, err := s.gen.NewRandom(ctx, s.repos.Comments.TokenExists)
		if err != nil {
			return nil, models.NewStoreFailure(err)
		}

		claimed, err := s.repos.Comments.StampMutationToken(ctx, commentID, candidate, s.cfg.Comments.WindowMinutes)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				continue
			}
			return nil, models.NewStoreFailure(err)
		}
		if !claimed {
			return nil, s.diagnoseStampFailure(ctx, commentID)
		}
		token = candidate
		break
	}
	if token == "" {
		return nil, models.NewStoreFailure(errors.New("could not allocate a unique pending action"))
	}

	returnURL := s.resolveReturnURL(req.ReturnURL)
	redirectURI := s.callbackURL(action, "", commentID, returnURL)

	s.log.Info().
		Str("comment_id", commentID).
		Str("action", string(action)).
		Str("state", token).
		Msg("Mutation claim opened")

	return &models.BeginActionResponse{
		AuthorizeURL: s.provider.AuthorizeURL(token, redirectURI),
		State:        token,
	}, nil
}

// diagnoseStampFailure classifies a zero-row mutation stamp.
func (s *commentService) diagnoseStampFailure(ctx context.Context, commentID string) error {
	row, err := s.repos.Comments.GetByID(ctx, commentID)
	if err != nil {
		return models.NewStoreFailure(err)
	}
	if row == nil {
		return models.NewNotFound("comment not found")
	}
	switch row.State() {
	case models.StateMutationPending:
		return models.NewAlreadyBound("a mutation is already in progress for this comment")
	case models.StatePendingCreate:
		// Placeholder rows are not publicly addressable comments.
		return models.NewNotFound("comment not found")
	default:
		return models.NewStoreFailure(errors.New("mutation claim failed unexpectedly"))
	}
}

// HandleCallback completes the provider round trip: it verifies the pending
// action, exchanges the code, fetches the identity and applies the bind (or,
// for delete, the deletion). The returned URL is where the browser goes next;
// it is non-empty on classified failures too so the user lands back on the
// blog with an error parameter rather than on a bare error page.
func (s *commentService) HandleCallback(ctx context.Context, cb *models.CallbackRequest) (string, error) {
	if err := s.validateCallback(cb); err != nil {
		return "", err
	}

	s.reap(ctx)

	returnURL := s.resolveReturnURL(cb.ReturnURL)

	// No code means the user denied authorization at the provider.
	if cb.Code == "" {
		err := models.NewUnauthorized("authorization was denied")
		return s.failureRedirect(returnURL, cb.Action, err), err
	}

	// Guard the exchange: a dead token must not burn the single-use code.
	expectPublished := cb.Action != models.ActionCreate
	alive, err := s.repos.Comments.CheckPending(ctx, cb.State, expectPublished)
	if err != nil {
		return s.failureRedirect(returnURL, cb.Action, models.NewStoreFailure(err)), models.NewStoreFailure(err)
	}
	if !alive {
		diag := s.diagnoseDeadToken(ctx, cb.State, expectPublished)
		return s.failureRedirect(returnURL, cb.Action, diag), diag
	}

	redirectURI := s.callbackURL(cb.Action, cb.PostID, cb.CommentID, returnURL)
	accessToken, err := s.provider.ExchangeCode(ctx, cb.Code, redirectURI)
	if err != nil {
		return s.failureRedirect(returnURL, cb.Action, err), err
	}
	identity, err := s.provider.FetchIdentity(ctx, accessToken)
	if err != nil {
		return s.failureRedirect(returnURL, cb.Action, err), err
	}

	var result string
	switch cb.Action {
	case models.ActionCreate:
		result, err = s.completeCreateBind(ctx, cb, identity, returnURL)
	case models.ActionEdit:
		result, err = s.completeMutationBind(ctx, cb, identity, returnURL)
	case models.ActionDelete:
		result, err = s.completeDelete(ctx, cb, identity, returnURL)
	}
	if err != nil {
		return s.failureRedirect(returnURL, cb.Action, err), err
	}
	return result, nil
}

func (s *commentService) validateCallback(cb *models.CallbackRequest) error {
	if err := s.validator.ValidateState(cb.State); err != nil {
		return err
	}
	if !cb.Action.Valid() {
		return models.NewValidation("action must be create, edit or delete")
	}
	if cb.Action == models.ActionCreate {
		if cb.CommentID != "" {
			return models.NewValidation("comment_id is not allowed for create")
		}
		if err := s.validator.ValidatePostID(cb.PostID); err != nil {
			return err
		}
	} else {
		if cb.PostID != "" {
			return models.NewValidation("post_id is not allowed for mutations")
		}
		if err := s.validator.ValidateCommentID(cb.CommentID); err != nil {
			return err
		}
	}
	return s.validator.ValidateReturnURL(cb.ReturnURL)
}

func (s *commentService) completeCreateBind(ctx context.Context, cb *models.CallbackRequest, identity *models.Identity, returnURL string) (string, error) {
	bound, err := s.repos.Comments.BindCreate(ctx, cb.State, cb.PostID, identity)
	if err != nil {
		return "", models.NewStoreFailure(err)
	}
	if !bound {
		return "", s.diagnoseCreateBindFailure(ctx, cb.State, identity.ID)
	}

	s.log.Info().
		Str("state", cb.State).
		Str("post_id", cb.PostID).
		Int64("owner_id", identity.ID).
		Msg("Identity bound to pending create")

	return appendParams(returnURL, url.Values{
		"comment_action": {string(models.ActionCreate)},
		"comment_state":  {cb.State},
	}), nil
}

func (s *commentService) completeMutationBind(ctx context.Context, cb *models.CallbackRequest, identity *models.Identity, returnURL string) (string, error) {
	// Advisory ownership gate; the conditional update re-enforces it.
	owns, err := s.repos.Comments.IsOwner(ctx, cb.CommentID, identity.ID)
	if err != nil {
		return "", models.NewStoreFailure(err)
	}
	if !owns {
		return "", s.diagnoseMutationFailure(ctx, cb.CommentID, cb.State, identity.ID)
	}

	bound, err := s.repos.Comments.BindMutation(ctx, cb.CommentID, cb.State, identity)
	if err != nil {
		return "", models.NewStoreFailure(err)
	}
	if !bound {
		return "", s.diagnoseMutationFailure(ctx, cb.CommentID, cb.State, identity.ID)
	}

	s.log.Info().
		Str("comment_id", cb.CommentID).
		Str("state", cb.State).
		Int64("owner_id", identity.ID).
		Msg("Identity bound to mutation claim")

	return appendParams(returnURL, url.Values{
		"comment_action": {string(models.ActionEdit)},
		"comment_state":  {cb.State},
		"comment_id":     {cb.CommentID},
	}), nil
}

func (s *commentService) completeDelete(ctx context.Context, cb *models.CallbackRequest, identity *models.Identity, returnURL string) (string, error) {
	row, err := s.repos.Comments.GetByID(ctx, cb.CommentID)
	if err != nil {
		return "", models.NewStoreFailure(err)
	}
	if row == nil {
		return "", models.NewNotFound("comment not found")
	}

	owns, err := s.repos.Comments.IsOwner(ctx, cb.CommentID, identity.ID)
	if err != nil {
		return "", models.NewStoreFailure(err)
	}
	if !owns {
		return "", models.NewUnauthorized("only the comment owner may delete it")
	}

	deleted, err := s.repos.Comments.DeleteOwned(ctx, cb.CommentID, identity.ID, cb.State)
	if err != nil {
		return "", models.NewStoreFailure(err)
	}
	if !deleted {
		return "", s.diagnoseMutationFailure(ctx, cb.CommentID, cb.State, identity.ID)
	}

	s.invalidate(ctx, row.TargetPostID)
	s.notifier.Dispatch(notify.Event{
		Action:    models.ActionDelete,
		CommentID: cb.CommentID,
		PostID:    row.TargetPostID,
		OwnerName: row.OwnerName,
	})

	s.log.Info().
		Str("comment_id", cb.CommentID).
		Int64("owner_id", identity.ID).
		Msg("Comment deleted")

	return appendParams(returnURL, url.Values{
		"comment_action": {string(models.ActionDelete)},
		"comment_id":     {cb.CommentID},
	}), nil
}

// SubmitCreate publishes a pending create under its derived id.
func (s *commentService) SubmitCreate(ctx context.Context, req *models.SubmitCommentRequest) (*models.Comment, error) {
	if err := s.validator.ValidateState(req.State); err != nil {
		return nil, err
	}
	body, err := s.validator.ValidateCommentBody(req.CommentText)
	if err != nil {
		return nil, err
	}

	s.reap(ctx)

	row, err := s.repos.Comments.GetByToken(ctx, req.State)
	if err != nil {
		return nil, models.NewStoreFailure(err)
	}
	if row == nil {
		return nil, models.NewNotFound("no pending action for this state")
	}
	if row.State() != models.StatePendingCreate {
		return nil, models.NewTokenMismatch("state does not reference a pending create")
	}
	if !row.Bound() {
		return nil, models.NewUnauthorized("no identity bound to this action yet")
	}

	for attempt := 0; attempt < publishRetries; attempt++ {
		newID, err := s.gen.PublishID(ctx, row.TargetPostID, row.OwnerID, s.repos.Comments.IDExists)
		if err != nil {
			return nil, models.NewStoreFailure(err)
		}

		published, err := s.repos.Comments.PublishPending(ctx, req.State, newID, body)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				// The derived id landed on a concurrent insert; derive again
				// from a fresh timestamp.
				continue
			}
			return nil, models.NewStoreFailure(err)
		}
		if !published {
			return nil, s.diagnosePublishFailure(ctx, req.State)
		}

		comment, err := s.repos.Comments.GetByID(ctx, newID)
		if err != nil {
			return nil, models.NewStoreFailure(err)
		}

		s.invalidate(ctx, row.TargetPostID)
		s.notifier.Dispatch(notify.Event{
			Action:    models.ActionCreate,
			CommentID: newID,
			PostID:    row.TargetPostID,
			OwnerName: row.OwnerName,
		})

		s.log.Info().
			Str("comment_id", newID).
			Str("post_id", row.TargetPostID).
			Int64("owner_id", row.OwnerID).
			Msg("Comment published")

		return comment, nil
	}

	return nil, models.NewStoreFailure(errors.New("could not allocate a unique comment id"))
}

// SubmitEdit finalizes an edit, replacing the body and releasing the claim.
func (s *commentService) SubmitEdit(ctx context.Context, commentID string, req *models.SubmitCommentRequest) (*models.Comment, error) {
	if err := s.validator.ValidateCommentID(commentID); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateState(req.State); err != nil {
		return nil, err
	}
	body, err := s.validator.ValidateCommentBody(req.CommentText)
	if err != nil {
		return nil, err
	}

	s.reap(ctx)

	row, err := s.repos.Comments.GetByToken(ctx, req.State)
	if err != nil {
		return nil, models.NewStoreFailure(err)
	}
	if row == nil {
		return nil, models.NewNotFound("no pending action for this state")
	}
	// The edit is addressed by comment id; the state is only a guard, so a
	// state issued for a different comment is rejected outright.
	if row.ID != commentID {
		return nil, models.NewTokenMismatch("state was not issued for this comment")
	}
	if row.State() != models.StateMutationPending {
		return nil, models.NewTokenMismatch("state does not reference a mutation claim")
	}

	finalized, err := s.repos.Comments.FinalizeEdit(ctx, commentID, req.State, row.OwnerID, body)
	if err != nil {
		return nil, models.NewStoreFailure(err)
	}
	if !finalized {
		return nil, s.diagnoseMutationFailure(ctx, commentID, req.State, row.OwnerID)
	}

	updated, err := s.repos.Comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, models.NewStoreFailure(err)
	}

	s.invalidate(ctx, row.TargetPostID)
	s.notifier.Dispatch(notify.Event{
		Action:    models.ActionEdit,
		CommentID: commentID,
		PostID:    row.TargetPostID,
		OwnerName: row.OwnerName,
	})

	s.log.Info().
		Str("comment_id", commentID).
		Int64("owner_id", row.OwnerID).
		Msg("Comment updated")

	return updated, nil
}

// ListComments returns the published comments for a post, oldest first.
func (s *commentService) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	if err := s.validator.ValidatePostID(postID); err != nil {
		return nil, err
	}

	cached, err := s.cache.GetPostComments(ctx, postID)
	if err == nil {
		return cached, nil
	}
	if err != cache.ErrMiss {
		s.log.Error().Err(err).Str("post_id", postID).Msg("Failed to read comment cache")
	}

	s.reap(ctx)

	comments, err := s.repos.Comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, models.NewStoreFailure(err)
	}

	if err := s.cache.SetPostComments(ctx, postID, comments); err != nil {
		s.log.Error().Err(err).Str("post_id", postID).Msg("Failed to write comment cache")
	}
	return comments, nil
}

// GetComment returns a single published comment by id.
func (s *commentService) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	if err := s.validator.ValidateCommentID(id); err != nil {
		return nil, err
	}

	row, err := s.repos.Comments.GetByID(ctx, id)
	if err != nil {
		return nil, models.NewStoreFailure(err)
	}
	// Placeholder rows are invisible until published.
	if row == nil || row.State() == models.StatePendingCreate {
		return nil, models.NewNotFound("comment not found")
	}
	return row, nil
}

// diagnoseDeadToken classifies a failed liveness check before the exchange.
func (s *commentService) diagnoseDeadToken(ctx context.Context, state string, expectPublished bool) error {
	row, err := s.repos.Comments.GetByToken(ctx, state)
	if err != nil {
		return models.NewStoreFailure(err)
	}
	if row == nil {
		return models.NewNotFound("no pending action for this state")
	}
	if row.BodyPresent != expectPublished {
		return models.NewTokenMismatch("state references a different kind of action")
	}
	// Row exists with the right shape, so the deadline must have passed.
	return models.NewExpired("the action window has passed")
}

// diagnoseCreateBindFailure classifies a zero-row create bind.
func (s *commentService) diagnoseCreateBindFailure(ctx context.Context, state string, identityID int64) error {
	row, err := s.repos.Comments.GetByToken(ctx, state)
	if err != nil {
		return models.NewStoreFailure(err)
	}
	if row == nil {
		return models.NewNotFound("no pending action for this state")
	}
	if row.BodyPresent {
		return models.NewTokenMismatch("state does not reference a pending create")
	}
	if row.Bound() && row.OwnerID != identityID {
		return models.NewAlreadyBound("a different identity is already bound to this action")
	}
	alive, err := s.repos.Comments.CheckPending(ctx, state, false)
	if err != nil {
		return models.NewStoreFailure(err)
	}
	if !alive {
		return models.NewExpired("the action window has passed")
	}
	return models.NewStoreFailure(errors.New("identity bind failed unexpectedly"))
}

// diagnosePublishFailure classifies a zero-row publish.
func (s *commentService) diagnosePublishFailure(ctx context.Context, state string) error {
	row, err := s.repos.Comments.GetByToken(ctx, state)
	if err != nil {
		return models.NewStoreFailure(err)
	}
	if row == nil {
		return models.NewNotFound("no pending action for this state")
	}
	if row.BodyPresent {
		return models.NewTokenMismatch("state does not reference a pending create")
	}
	if !row.Bound() || row.TargetPostID == "" {
		return models.NewUnauthorized("no identity bound to this action yet")
	}
	alive, err := s.repos.Comments.CheckPending(ctx, state, false)
	if err != nil {
		return models.NewStoreFailure(err)
	}
	if !alive {
		return models.NewExpired("the action window has passed")
	}
	return models.NewStoreFailure(errors.New("publish failed unexpectedly"))
}

// diagnoseMutationFailure classifies a zero-row mutation bind, finalize or
// delete against the current row.
func (s *commentService) diagnoseMutationFailure(ctx context.Context, commentID, state string, identityID int64) error {
	row, err := s.repos.Comments.GetByID(ctx, commentID)
	if err != nil {
		return models.NewStoreFailure(err)
	}
	if row == nil {
		return models.NewNotFound("comment not found")
	}
	if row.CorrelationToken == "" {
		// The reaper released the claim.
		return models.NewExpired("the action window has passed")
	}
	if row.CorrelationToken != state {
		return models.NewTokenMismatch("the claim was superseded")
	}
	if row.OwnerID != identityID {
		return models.NewUnauthorized("only the comment owner may modify it")
	}
	alive, err := s.repos.Comments.CheckPending(ctx, state, true)
	if err != nil {
		return models.NewStoreFailure(err)
	}
	if !alive {
		return models.NewExpired("the action window has passed")
	}
	return models.NewStoreFailure(errors.New("mutation failed unexpectedly"))
}

// invalidate drops the cached listing for a post after a mutation lands.
func (s *commentService) invalidate(ctx context.Context, postID string) {
	if postID == "" {
		return
	}
	if err := s.cache.InvalidatePost(ctx, postID); err != nil {
		s.log.Error().Err(err).Str("post_id", postID).Msg("Failed to invalidate comment cache")
	}
}

// callbackURL builds the provider redirect URI. url.Values encoding is
// deterministic, so the begin and exchange sides always produce the same URI.
func (s *commentService) callbackURL(action models.CommentAction, postID, commentID, returnURL string) string {
	params := url.Values{}
	params.Set("action", string(action))
	if postID != "" {
		params.Set("post_id", postID)
	}
	if commentID != "" {
		params.Set("comment_id", commentID)
	}
	if returnURL != "" {
		params.Set("return_url", returnURL)
	}
	base := strings.TrimRight(s.cfg.Server.PublicBaseURL, "/")
	return base + "/api/v1/oauth/callback?" + params.Encode()
}

func (s *commentService) resolveReturnURL(requested string) string {
	if requested != "" {
		return requested
	}
	if s.cfg.Comments.DefaultReturnURL != "" {
		return s.cfg.Comments.DefaultReturnURL
	}
	return s.cfg.Server.PublicBaseURL
}

// failureRedirect sends the browser back to the blog with an error parameter
// when a classified failure interrupts the round trip.
func (s *commentService) failureRedirect(returnURL string, action models.CommentAction, err error) string {
	if returnURL == "" {
		return ""
	}
	var appErr *models.Error
	kind := models.KindStoreFailure
	if errors.As(err, &appErr) {
		kind = appErr.Kind
	}
	return appendParams(returnURL, url.Values{
		"comment_action": {string(action)},
		"comment_error":  {string(kind)},
	})
}

// appendParams adds query parameters to a URL, preserving any it already has.
func appendParams(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for key, values := range params {
		for _, value := range values {
			q.Set(key, value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
