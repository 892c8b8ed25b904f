package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/shared"
)

const (
	DefaultTranscriptionLanguage = "auto"
	DefaultTargetLanguage        = "en"
)

// Me retrieves the profile of the authenticated user.
func (a *APIService) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := a.GetJSON(ctx, "/users/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateMe sends a partial profile update and returns the fields echoed back by the server.
func (a *APIService) UpdateMe(ctx context.Context, update models.ProfileUpdate) (models.ProfilePatch, error) {
	var patch models.ProfilePatch
	if err := a.PutJSON(ctx, "/users/me", update, &patch); err != nil {
		return models.ProfilePatch{}, err
	}
	return patch, nil
}

// SubmitAnalysis starts a server-side analysis of a CitNOW video URL.
func (a *APIService) SubmitAnalysis(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisAccepted, error) {
	req.URL = strings.TrimSpace(req.URL)
	if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute URL", shared.ErrInvalidInput, req.URL)
	}
	if req.TranscriptionLanguage == "" {
		req.TranscriptionLanguage = DefaultTranscriptionLanguage
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = DefaultTargetLanguage
	}

	var accepted models.AnalysisAccepted
	if err := a.PostJSON(ctx, "/analyze", req, &accepted); err != nil {
		return nil, err
	}
	if accepted.TaskID == "" {
		return nil, fmt.Errorf("%w: /analyze returned no task_id", shared.ErrAPIRequest)
	}
	return &accepted, nil
}

// TaskStatus fetches the current status of a tracked task from its status endpoint.
func (a *APIService) TaskStatus(ctx context.Context, task models.Task) (*models.StatusReport, error) {
	var report models.StatusReport
	if err := a.GetJSON(ctx, task.StatusEndpoint(), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Users lists the users visible to the caller.
func (a *APIService) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := a.GetJSON(ctx, "/users/", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// DealerUsers lists the users that belong to dealerID.
func (a *APIService) DealerUsers(ctx context.Context, dealerID string) ([]models.User, error) {
	if dealerID == "" {
		return nil, fmt.Errorf("%w: dealer id", shared.ErrMissingArgument)
	}
	var users []models.User
	if err := a.GetJSON(ctx, "/users/by-dealer/"+url.PathEscape(dealerID), &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser creates a user account.
func (a *APIService) CreateUser(ctx context.Context, in models.UserCreate) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	var user models.User
	if err := a.PostJSON(ctx, "/users/", in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser applies a partial update to the user identified by id.
func (a *APIService) UpdateUser(ctx context.Context, id string, in models.UserUpdate) (*models.User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	var user models.User
	if err := a.PutJSON(ctx, "/users/"+url.PathEscape(id), in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes the user identified by id.
func (a *APIService) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	return a.DeleteJSON(ctx, "/users/"+url.PathEscape(id))
}

// Results lists analysis results. The backend returns either a bare array or {"results": [...]}.
func (a *APIService) Results(ctx context.Context, filter models.ResultFilter) ([]models.Result, error) {
	q := url.Values{}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.DealerID != "" {
		q.Set("dealer_id", filter.DealerID)
	}
	path := "/results"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw []byte
	if err := a.GetJSON(ctx, path, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []models.Result{}, nil
	}
	results, err := models.DecodeList[models.Result](raw, "results")
	if err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return results, nil
}

// DeleteResult removes the analysis result identified by id.
func (a *APIService) DeleteResult(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: result id", shared.ErrMissingArgument)
	}
	return a.DeleteJSON(ctx, "/results/"+url.PathEscape(id))
}

// Overview fetches the super-admin dashboard aggregates.
func (a *APIService) Overview(ctx context.Context) (*models.Overview, error) {
	var overview models.Overview
	if err := a.GetJSON(ctx, "/dashboard/super-admin/overview", &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

// DealerUserStats fetches per-user video counts for dealerID. The backend returns either a bare
// array or {"users": [...]}.
func (a *APIService) DealerUserStats(ctx context.Context, dealerID string) ([]models.UserStat, error) {
	if dealerID == "" {
		return nil, fmt.Errorf("%w: dealer id", shared.ErrMissingArgument)
	}

	var raw []byte
	if err := a.GetJSON(ctx, "/dashboard/dealer/"+url.PathEscape(dealerID)+"/user-stats", &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []models.UserStat{}, nil
	}
	stats, err := models.DecodeList[models.UserStat](raw, "users")
	if err != nil {
		return nil, fmt.Errorf("failed to decode user stats: %w", err)
	}
	return stats, nil
}
