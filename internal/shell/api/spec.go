package api

import (
	"net/http"

	"github.com/dochero/dochero/internal/shell/api/openapi"
)

// newSpec documents every route served by Routes.
func newSpec(cfg Config) *openapi.Generator {
	opts := []openapi.Option{
		openapi.WithTitle("dochero API"),
		openapi.WithDescription("PDF processing and mailbox intake"),
		openapi.WithVersion(cfg.Version),
	}
	if cfg.PublicURL != "" {
		opts = append(opts, openapi.WithServer(cfg.PublicURL))
	}
	g := openapi.NewGenerator(opts...)

	badRequest := openapi.Response{Status: "400", Description: "Invalid upload or options", Model: DetailResponse{}}
	tooLarge := openapi.Response{Status: "413", Description: "Upload too large", Model: DetailResponse{}}
	failed := openapi.Response{Status: "500", Description: "Processing failed", Model: DetailResponse{}}

	g.Register(openapi.Operation{
		ID: "health", Method: http.MethodGet, Path: "/health", Summary: "Liveness check", Tag: "System",
		Responses: []openapi.Response{{Status: "200", Description: "Service is up", Model: HealthResponse{}}},
	})

	g.Register(openapi.Operation{
		ID: "splitPDF", Method: http.MethodPost, Path: "/split", Tag: "Documents",
		Summary: "Split a PDF every N pages, at keyword pages or at barcode pages",
		Request: SplitForm{}, RequestType: openapi.Multipart,
		Responses: []openapi.Response{
			{Status: "200", Description: "ZIP of PDF parts", ContentType: "application/zip"},
			badRequest, tooLarge, failed,
		},
	})
	g.Register(openapi.Operation{
		ID: "rotatePDF", Method: http.MethodPost, Path: "/rotate", Tag: "Documents",
		Summary: "Rotate every page upright",
		Request: UploadForm{}, RequestType: openapi.Multipart,
		Responses: []openapi.Response{
			{Status: "200", Description: "Rotated PDF", ContentType: "application/pdf"},
			badRequest, tooLarge, failed,
		},
	})
	g.Register(openapi.Operation{
		ID: "preparePDF", Method: http.MethodPost, Path: "/prepare", Tag: "Documents",
		Summary: "Deskewed grayscale first page",
		Request: UploadForm{}, RequestType: openapi.Multipart,
		Responses: []openapi.Response{
			{Status: "200", Description: "One-page PDF", ContentType: "application/pdf"},
			badRequest, tooLarge, failed,
		},
	})

	mailError := func(status, description string) openapi.Response {
		return openapi.Response{Status: status, Description: description, Model: ErrorResponse{}}
	}

	for _, p := range mailProviders {
		name := providerTitle(p)
		g.Register(openapi.Operation{
			ID: "initiate" + name, Method: http.MethodPost, Path: "/oauth/" + string(p) + "/initiate", Tag: name,
			Summary: "Start the " + name + " OAuth flow",
			Request: InitiateRequest{},
			Responses: []openapi.Response{
				{Status: "200", Description: "Consent URL", Model: InitiateResponse{}},
				mailError("400", "Missing user_id"),
			},
		})
		g.Register(openapi.Operation{
			ID: "callback" + name, Method: http.MethodGet, Path: "/oauth/" + string(p) + "/callback", Tag: name,
			Summary:     "OAuth redirect target",
			QueryParams: []string{"code", "state"},
			Responses:   []openapi.Response{{Status: "307", Description: "Redirect to the frontend"}},
		})
		g.Register(openapi.Operation{
			ID: "status" + name, Method: http.MethodGet, Path: "/oauth/" + string(p) + "/status/{user_id}", Tag: name,
			Summary:    "Connected " + name + " accounts",
			PathParams: []string{"user_id"},
			Responses: []openapi.Response{
				{Status: "200", Description: "Account summary", Model: StatusResponse{}},
				mailError("500", "Store failure"),
			},
		})
		g.Register(openapi.Operation{
			ID: "poll" + name, Method: http.MethodPost, Path: "/" + string(p) + "/poll", Tag: name,
			Summary: "Forward new " + name + " messages to the webhook",
			Responses: []openapi.Response{
				{Status: "200", Description: "Messages forwarded", Model: PollResponse{}},
				mailError("500", "Store failure"),
			},
		})
	}

	g.Register(openapi.Operation{
		ID: "gmailSettings", Method: http.MethodPost, Path: "/oauth/gmail/settings", Tag: "Gmail",
		Summary: "Set the Gmail subject filter",
		Request: SettingsRequest{},
		Responses: []openapi.Response{
			{Status: "200", Description: "Updated accounts", Model: SettingsResponse{}},
			mailError("400", "Missing user_id"),
			mailError("500", "Store failure"),
		},
	})
	g.Register(openapi.Operation{
		ID: "gmailAttachment", Method: http.MethodGet, Path: "/gmail/attachment", Tag: "Gmail",
		Summary:     "Download a Gmail attachment",
		QueryParams: []string{"user_id", "message_id", "attachment_id"},
		Responses: []openapi.Response{
			{Status: "200", Description: "Attachment bytes", ContentType: "application/octet-stream"},
			mailError("400", "Provider fetch failed"),
			mailError("404", "User has no Gmail account"),
			mailError("502", "No usable token"),
		},
	})

	return g
}
