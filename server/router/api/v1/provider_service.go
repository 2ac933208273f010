package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListProviders returns the configured candidates in router order.
func (s *APIV1Service) ListProviders(c echo.Context) error {
	response := listProvidersResponse{Providers: []providerPayload{}}
	if s.Providers != nil {
		for i, p := range s.Providers.Candidates() {
			response.Providers = append(response.Providers, providerPayload{
				Position: i,
				Provider: p.Name(),
				Model:    p.Model(),
			})
		}
	}
	return c.JSON(http.StatusOK, response)
}
