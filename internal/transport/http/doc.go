// Package http implements the HTTP handlers of the City Pulse web service.
// Handlers stay thin: they parse the multipart upload and query string,
// call the service layer and format the response.
//
// # Endpoints
//
//	POST /api/insights                 upload a CSV, receive an InsightReport
//	POST /api/insights/charts/{chart}  upload a CSV, receive one chart as PNG
//	GET  /api/health                   service status
//	GET  /api/health/ready             readiness, 503 when a check fails
//	GET  /api/health/live              liveness
//	GET  /api/version                  build information
//	GET  /                             upload page
//
// # Error Handling
//
// Service sentinels are translated to API errors and rendered as RFC 7807
// problems by the shared error handler:
//
//	{
//	    "type": "/errors/upload/unreadable",
//	    "title": "Unreadable Upload",
//	    "status": 400,
//	    "detail": "city.csv: malformed CSV: ...",
//	    "instance": "/api/insights",
//	    "retry_upload": true
//	}
//
// # Testing
//
// Handlers are tested with httptest against mocked service interfaces.
package http
