package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/codedrip/codedrip-server/internal/http/response"
)

// EnvelopeTransformer wraps every huma response body in the standard
// {success, data} / {success, error} envelope so typed endpoints and plain
// chi handlers present the same contract.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	if apiErr, ok := v.(*APIError); ok {
		return response.Envelope{
			Success: false,
			Error:   apiErr.Message,
			Data:    apiErr,
		}, nil
	}

	return response.Envelope{
		Success: status < "400",
		Data:    v,
	}, nil
}
