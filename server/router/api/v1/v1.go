package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hrygo/omnichat/ai/chat"
	"github.com/hrygo/omnichat/ai/core/llm"
	"github.com/hrygo/omnichat/internal/profile"
	"github.com/hrygo/omnichat/store"
)

// OwnerHeader carries the opaque owner reference set by an upstream identity layer.
const OwnerHeader = "X-Owner-ID"

// ChatRunner runs one chat turn.
type ChatRunner interface {
	Chat(ctx context.Context, req *chat.Request) (*chat.Response, error)
}

// CandidateLister reports the provider candidates in fallback order.
type CandidateLister interface {
	Candidates() []llm.Provider
}

type APIV1Service struct {
	Profile   *profile.Profile
	Store     *store.Store
	Chat      ChatRunner
	Providers CandidateLister

	chatSemaphore *semaphore.Weighted
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, chatRunner ChatRunner, providers CandidateLister) *APIV1Service {
	maxChats := profile.MaxConcurrentChats
	if maxChats <= 0 {
		maxChats = 16
	}
	return &APIV1Service{
		Profile:       profile,
		Store:         store,
		Chat:          chatRunner,
		Providers:     providers,
		chatSemaphore: semaphore.NewWeighted(int64(maxChats)),
	}
}

// RegisterRoutes registers the REST handlers with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	corsHandler := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, OwnerHeader, echo.HeaderXRequestID},
	})

	apiGroup := echoServer.Group("/api/v1", corsHandler, s.rateLimiter())

	apiGroup.POST("/chat", s.CreateChat)
	apiGroup.GET("/chat", s.GetChat)

	apiGroup.GET("/conversations", s.ListConversations)
	apiGroup.GET("/conversations/:id", s.GetConversation)
	apiGroup.PATCH("/conversations/:id", s.UpdateConversation)
	apiGroup.DELETE("/conversations/:id", s.DeleteConversation)

	apiGroup.GET("/providers", s.ListProviders)
}

// rateLimiter limits requests per client IP. A non-positive rate disables it.
func (s *APIV1Service) rateLimiter() echo.MiddlewareFunc {
	if s.Profile.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	burst := s.Profile.RateBurst
	if burst <= 0 {
		burst = int(s.Profile.RateLimit) + 1
	}
	slog.Debug("api: rate limiter enabled", "rate", s.Profile.RateLimit, "burst", burst)

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(s.Profile.RateLimit),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client").SetInternal(err)
		},
		DenyHandler: func(_ echo.Context, _ string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded").SetInternal(err)
		},
	})
}

func ownerID(c echo.Context) string {
	return c.Request().Header.Get(OwnerHeader)
}
