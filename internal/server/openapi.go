package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/citycrawl/crawl/internal/content"
	"github.com/citycrawl/crawl/internal/crawl"
	"github.com/citycrawl/crawl/internal/handler/health"
)

type statusResponse struct {
	Status string `json:"status"`
}

// operation describes one documented route.
type operation struct {
	method, path, summary, description string
	req                                any
	resp                               map[int]any
}

type crawlPath struct {
	CrawlID string `path:"crawlID"`
}

type stopPath struct {
	StopNumber int `path:"stopNumber" minimum:"1"`
}

type adminCrawlPath struct {
	ID string `path:"id"`
}

type tokenQuery struct {
	Token string `query:"token" required:"true"`
}

// pathParams declares the parameters of templated and token-authenticated
// paths.
var pathParams = map[string]any{
	"/api/crawls/{crawlID}":                     crawlPath{},
	"/api/crawls/{crawlID}/signup":              crawlPath{},
	"/api/progress/stops/{stopNumber}/complete": stopPath{},
	"/api/admin/crawls/{id}":                    adminCrawlPath{},
	"/api/events":                               tokenQuery{},
	"/ws/progress":                              tokenQuery{},
}

func operations() []operation {
	const bearer = " Requires Bearer token."
	const cookie = " Requires admin_session cookie."

	return []operation{
		{http.MethodGet, "/healthz", "Health check", "Returns the health status of backend dependencies.", nil,
			map[int]any{http.StatusOK: health.Response{}, http.StatusServiceUnavailable: health.Response{}}},

		{http.MethodGet, "/api/crawls", "List crawls", "Lists crawls, optionally filtered with ?visibility=public|library." + bearer, nil,
			map[int]any{http.StatusOK: []CrawlSummary{}, http.StatusBadRequest: ErrorResponse{}, http.StatusUnauthorized: ErrorResponse{}}},
		{http.MethodGet, "/api/crawls/{crawlID}", "Get crawl", "Returns a crawl with its stops. Riddle answers and rewards are hidden." + bearer, nil,
			map[int]any{http.StatusOK: CrawlDetail{}, http.StatusNotFound: ErrorResponse{}}},
		{http.MethodPost, "/api/crawls/{crawlID}/signup", "Sign up", "Registers for a scheduled public crawl." + bearer, nil,
			map[int]any{http.StatusOK: Signup{}, http.StatusBadRequest: ErrorResponse{}, http.StatusNotFound: ErrorResponse{}}},
		{http.MethodDelete, "/api/crawls/{crawlID}/signup", "Cancel signup", "Removes a public crawl registration." + bearer, nil,
			map[int]any{http.StatusOK: statusResponse{}, http.StatusNotFound: ErrorResponse{}}},

		{http.MethodGet, "/api/me", "Get profile", "Returns the caller's profile." + bearer, nil,
			map[int]any{http.StatusOK: crawl.UserProfile{}}},
		{http.MethodPut, "/api/me", "Update profile", "Updates display name and avatar." + bearer, UpdateProfileRequest{},
			map[int]any{http.StatusOK: crawl.UserProfile{}, http.StatusBadRequest: ErrorResponse{}}},
		{http.MethodGet, "/api/me/signups", "List signups", "Lists the caller's public crawl registrations." + bearer, nil,
			map[int]any{http.StatusOK: []Signup{}}},

		{http.MethodGet, "/api/progress", "Get progress", "Returns the active attempt, or phase not_started." + bearer, nil,
			map[int]any{http.StatusOK: ProgressResponse{}}},
		{http.MethodPost, "/api/progress/start", "Start crawl", "Starts a crawl. Fails with 409 if another crawl is active unless confirm is set." + bearer, StartRequest{},
			map[int]any{http.StatusOK: ProgressResponse{}, http.StatusConflict: ConflictResponse{}, http.StatusNotFound: ErrorResponse{}}},
		{http.MethodPost, "/api/progress/stops/{stopNumber}/complete", "Complete stop", "Completes the current stop. Riddles take an answer." + bearer, CompleteStopRequest{},
			map[int]any{http.StatusOK: ProgressResponse{}, http.StatusConflict: LockedResponse{}, http.StatusUnprocessableEntity: ErrorResponse{}}},
		{http.MethodPost, "/api/progress/advance", "Advance", "Moves to the next stop, finishing the crawl after the last one." + bearer, nil,
			map[int]any{http.StatusOK: ProgressResponse{}, http.StatusConflict: ErrorResponse{}, http.StatusNotFound: ErrorResponse{}}},
		{http.MethodPost, "/api/progress/exit", "Exit crawl", "Leaves the crawl, keeping progress for later unless persist is false." + bearer, ExitRequest{},
			map[int]any{http.StatusOK: statusResponse{}, http.StatusNotFound: ErrorResponse{}}},
		{http.MethodPost, "/api/progress/end", "End crawl", "Abandons the crawl and records it as unfinished." + bearer, nil,
			map[int]any{http.StatusOK: statusResponse{}, http.StatusNotFound: ErrorResponse{}}},

		{http.MethodGet, "/api/history", "Crawl history", "Lists finished and abandoned attempts, newest first." + bearer, nil,
			map[int]any{http.StatusOK: []crawl.HistoryEntry{}}},
		{http.MethodGet, "/api/stats", "Crawl stats", "Aggregates completed attempts." + bearer, nil,
			map[int]any{http.StatusOK: crawl.Stats{}}},

		{http.MethodGet, "/api/events", "Progress events", "Server-Sent Events stream of progress changes. Pass token as query parameter.", nil,
			map[int]any{http.StatusOK: nil}},
		{http.MethodGet, "/ws/progress", "Progress socket", "WebSocket sending a snapshot and then progress events. Pass token as query parameter.", nil,
			map[int]any{http.StatusSwitchingProtocols: nil}},

		{http.MethodPost, "/api/admin/login", "Admin login", "Authenticate with email and password. Sets admin_session cookie.", AdminLoginRequest{},
			map[int]any{http.StatusOK: AdminMeResponse{}, http.StatusUnauthorized: ErrorResponse{}}},
		{http.MethodPost, "/api/admin/logout", "Admin logout", "Clears admin session and cookie.", nil,
			map[int]any{http.StatusOK: statusResponse{}}},
		{http.MethodGet, "/api/admin/me", "Current admin", "Returns the currently authenticated admin." + cookie, nil,
			map[int]any{http.StatusOK: AdminMeResponse{}, http.StatusUnauthorized: ErrorResponse{}}},
		{http.MethodGet, "/api/admin/crawls", "List crawls (admin)", "Lists stored crawls with stop counts." + cookie, nil,
			map[int]any{http.StatusOK: []AdminCrawlSummary{}}},
		{http.MethodPost, "/api/admin/crawls", "Create crawl", "Creates a crawl with its stops." + cookie, content.CrawlDoc{},
			map[int]any{http.StatusCreated: content.CrawlDoc{}, http.StatusBadRequest: ErrorResponse{}, http.StatusConflict: ErrorResponse{}}},
		{http.MethodGet, "/api/admin/crawls/{id}", "Get crawl (admin)", "Returns a crawl including riddle answers." + cookie, nil,
			map[int]any{http.StatusOK: content.CrawlDoc{}, http.StatusNotFound: ErrorResponse{}}},
		{http.MethodPut, "/api/admin/crawls/{id}", "Update crawl", "Replaces a crawl and its stops." + cookie, content.CrawlDoc{},
			map[int]any{http.StatusOK: content.CrawlDoc{}, http.StatusBadRequest: ErrorResponse{}, http.StatusNotFound: ErrorResponse{}}},
		{http.MethodDelete, "/api/admin/crawls/{id}", "Delete crawl", "Deletes a crawl and its stops." + cookie, nil,
			map[int]any{http.StatusOK: statusResponse{}, http.StatusNotFound: ErrorResponse{}}},
	}
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "City Crawl API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for self-guided city crawls.")

	for _, op := range operations() {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.description)
		if params, ok := pathParams[op.path]; ok {
			oc.AddReqStructure(params)
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		for status, body := range op.resp {
			switch {
			case op.path == "/api/events":
				oc.AddRespStructure(nil, openapi.WithHTTPStatus(status), openapi.WithContentType("text/event-stream"))
			case body == nil:
				oc.AddRespStructure(nil, openapi.WithHTTPStatus(status), openapi.WithContentType("text/plain"))
			default:
				oc.AddRespStructure(body, openapi.WithHTTPStatus(status))
			}
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
