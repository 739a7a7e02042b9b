package http

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/service"
)

type HTTPPerformerService struct {
	client *remoteClient
}

// NewHTTPPerformerService creates a performer registry client with connection pooling
func NewHTTPPerformerService(cfg *config.RemoteService) *HTTPPerformerService {
	return &HTTPPerformerService{client: newRemoteClient("performer-service", cfg)}
}

// CheckPerformer calls GET <base>/check-id?id=<performerID>.
// Only a 2xx answer with body true means valid. Other 2xx and 4xx answers
// mean invalid. 5xx and transport failures that outlast the retries mean unreachable.
func (s *HTTPPerformerService) CheckPerformer(ctx context.Context, performerID int64) (service.PerformerStatus, error) {
	target := s.client.endpoint("check-id", url.Values{"id": {strconv.FormatInt(performerID, 10)}})

	resp, err := s.client.do(ctx, http.MethodGet, target)
	if err != nil {
		return service.PerformerUnreachable, err
	}

	if !isSuccess(resp.StatusCode) {
		return service.PerformerInvalid, nil
	}

	if string(bytes.TrimSpace(resp.Body)) == "true" {
		return service.PerformerValid, nil
	}
	return service.PerformerInvalid, nil
}
