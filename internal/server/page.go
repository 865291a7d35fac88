package server

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"cvedge/internal/common"
	cvedgeErrors "cvedge/internal/errors"
	"cvedge/internal/observability"
	"cvedge/internal/types"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>CVEdge Resume Optimizer</title>
</head>
<body>
<h1>CVEdge Resume Optimizer</h1>
{{if .Warning}}<p class="warning" role="alert">{{.Warning}}</p>{{end}}
{{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/">
<label for="resumeText">Resume</label>
<textarea id="resumeText" name="resumeText" rows="20" cols="80" required>{{.ResumeText}}</textarea>
<label for="jobDescription">Target job description (optional)</label>
<textarea id="jobDescription" name="jobDescription" rows="8" cols="80">{{.JobDescription}}</textarea>
{{if .AccessKeyRequired}}<label for="accessKey">Server access key</label>
<input id="accessKey" name="accessKey" type="password" autocomplete="off" required>
{{end}}<label for="apiKey">API key (optional)</label>
<input id="apiKey" name="apiKey" type="password" autocomplete="off">
<label><input name="structured" type="checkbox" value="true"{{if .Structured}} checked{{end}}> Include improvement notes and ATS score</label>
<button type="submit">Optimize</button>
</form>
{{with .Result}}
<section id="result">
{{if .IsDemo}}<p class="notice">Demo result: the optimization service was not reachable.</p>{{end}}
{{if .ATSScore}}<p>ATS score: <strong>{{.Score}}</strong></p>{{end}}
{{if .Improvements}}<ul>{{range .Improvements}}<li>{{.}}</li>{{end}}</ul>{{end}}
<pre>{{.OptimizedText}}</pre>
<form method="post" action="/download">
<input type="hidden" name="optimized" value="{{.OptimizedText}}">
{{if $.AccessKeyRequired}}<label for="downloadAccessKey">Server access key</label>
<input id="downloadAccessKey" name="accessKey" type="password" autocomplete="off" required>
{{end}}<button type="submit">Download PDF</button>
</form>
</section>
{{end}}
</body>
</html>
`))

// pageData is the view model of the submission page. Neither key is ever echoed back.
type pageData struct {
	ResumeText        string
	JobDescription    string
	Structured        bool
	AccessKeyRequired bool
	Warning           string
	Error             string
	Result            *pageResult
}

type pageResult struct {
	types.OptimizationResult
}

// Score returns the dereferenced ATS score. The template checks ATSScore first.
func (p pageResult) Score() int {
	if p.ATSScore == nil {
		return 0
	}
	return *p.ATSScore
}

// pageHandler serves the empty submission page
func (s *Server) pageHandler(w http.ResponseWriter, r *http.Request) {
	data := pageData{}
	if s.AppConfig != nil {
		data.Structured = s.AppConfig.AI.StructuredOutput
	}
	s.writePage(w, r, http.StatusOK, data)
}

// createPageSubmitHandler runs the optimize action for the HTML form
func (s *Server) createPageSubmitHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvedge.api").Start(r.Context(), "page.optimize")
		defer span.End()

		if err := r.ParseForm(); err != nil {
			span.RecordError(err)
			s.writePage(w, r, statusForBodyError(err), pageData{Error: "The submitted form could not be read."})
			return
		}

		data := pageData{
			ResumeText:     r.PostFormValue("resumeText"),
			JobDescription: r.PostFormValue("jobDescription"),
			Structured:     r.PostFormValue("structured") == "true",
		}

		if err := common.ValidateResumeText(data.ResumeText); err != nil {
			data.Warning = userMessage(err)
			s.writePage(w, r, http.StatusBadRequest, data)
			return
		}

		structured := data.Structured
		req := types.OptimizationRequest{
			ResumeText:     data.ResumeText,
			JobDescription: data.JobDescription,
			APIKey:         strings.TrimSpace(r.PostFormValue("apiKey")),
			Structured:     &structured,
		}

		result, err := s.runOptimize(ctx, r, req, om)
		if err != nil {
			span.RecordError(err)
			data.Error = userMessage(err)
			if cvedgeErrors.IsCode(err, cvedgeErrors.ErrCodeMissingAPIKey) {
				data.Error = "No API key is configured. Enter one above to optimize your resume."
			}
			s.writePage(w, r, statusForError(err), data)
			return
		}

		data.Result = &pageResult{OptimizationResult: result}
		s.writePage(w, r, http.StatusOK, data)
	}
}

// writePage renders into a buffer first so a template failure never sends a partial page
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	data.AccessKeyRequired = len(s.APIKeys) > 0

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.requestLogger(r).LogError(err, "Failed to render page")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
