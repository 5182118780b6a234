package api

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"veritas/internal/task"
)

var uiTemplates = template.Must(template.New("layout").Parse(`{{define "layout"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>Veritas</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,sans-serif;max-width:880px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    h1{font-size:22px;margin:0 0 8px}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    textarea,input[type=text]{padding:9px 10px;border:1px solid #dcdcdc;border-radius:8px;width:100%;box-sizing:border-box}
    .muted{color:#666}
    .mono{font-family:ui-monospace,Menlo,Consolas,monospace;white-space:pre-wrap}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
    table{width:100%;border-collapse:collapse}
    td,th{text-align:left;padding:6px 8px;border-bottom:1px solid #eee;font-size:14px}
  </style>
</head>
<body>
  <header><h1>Veritas</h1><div class="muted">Fact-check orchestrator</div></header>
  {{template "content" .}}
  <footer class="muted" style="margin-top:24px;font-size:12px">API base: <span class="mono">/api/v1</span></footer>
</body>
</html>
{{end}}

{{define "home"}}{{template "layout" .}}{{end}}
{{define "task"}}{{template "layout" .}}{{end}}

{{define "content"}}
  {{if .Error}}<div class="card" style="border-color:#f2b8b5"><strong>Error:</strong> <span class="muted">{{.Error}}</span></div>{{end}}
  {{if .Task}}
  <div class="card">
    <h2>Task {{.Task.ID}}</h2>
    <p><span class="status">{{.Task.Status}}</span> <span class="muted">started {{.Task.StartedAt.Format "15:04:05"}}{{if .Task.Duration}}, took {{.Task.Duration}}{{end}}</span></p>
    {{if .ResultJSON}}<div class="mono">{{.ResultJSON}}</div>{{end}}
    {{if .Task.Error}}<p class="muted">{{.Task.Error}}</p>{{end}}
  </div>
  {{else}}
  <div class="card">
    <h2>Analyze text</h2>
    <form method="post" action="/ui/analyze">
      <textarea name="text" rows="5" placeholder="Paste text to fact-check"></textarea>
      <p>
        <select name="mode">
          <option value="balanced">balanced</option>
          <option value="argumentative">argumentative</option>
          <option value="helpful">helpful</option>
        </select>
        <button class="btn" type="submit">Analyze</button>
      </p>
    </form>
  </div>
  <div class="card">
    <h2>Recent tasks</h2>
    {{if .Tasks}}
    <table>
      <tr><th>ID</th><th>Status</th><th>Created</th><th>Duration</th></tr>
      {{range .Tasks}}
      <tr><td><a href="/ui/tasks/{{.ID}}">{{.ID}}</a></td><td><span class="status">{{.Status}}</span></td><td>{{.CreatedAt.Format "15:04:05"}}</td><td>{{.Duration}}</td></tr>
      {{end}}
    </table>
    {{else}}<p class="muted">No tasks yet.</p>{{end}}
  </div>
  {{end}}
{{end}}
`))

type uiPage struct {
	Error      string
	Task       *task.Snapshot
	ResultJSON string
	Tasks      []task.Snapshot
}

// RegisterUIRoutes adds the minimal no-JS HTML pages on top of the JSON API.
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.GET("/", a.uiHome)
	router.POST("/ui/analyze", a.uiAnalyze)
	router.GET("/ui/tasks/:id", a.uiTask)
}

func (a *API) uiHome(c *gin.Context) {
	a.renderUI(c, "home", uiPage{Tasks: a.manager.Recent(defaultHistoryLimit)})
}

func (a *API) uiAnalyze(c *gin.Context) {
	text := c.PostForm("text")
	mode := c.PostForm("mode")
	if text == "" {
		a.renderUI(c, "home", uiPage{Error: "text is required", Tasks: a.manager.Recent(defaultHistoryLimit)})
		return
	}
	id, err := a.manager.Submit("", a.service.Task(text, mode), a.taskTimeout)
	if err != nil {
		a.renderUI(c, "home", uiPage{Error: err.Error(), Tasks: a.manager.Recent(defaultHistoryLimit)})
		return
	}
	c.Redirect(http.StatusSeeOther, "/ui/tasks/"+id)
}

func (a *API) uiTask(c *gin.Context) {
	snap, ok := a.manager.Get(c.Param("id"))
	if !ok {
		a.renderUI(c, "home", uiPage{Error: "task not found", Tasks: a.manager.Recent(defaultHistoryLimit)})
		return
	}
	page := uiPage{Task: &snap}
	if snap.Result != nil {
		if raw, err := json.MarshalIndent(snap.Result, "", "  "); err == nil {
			page.ResultJSON = string(raw)
		}
	}
	if !snap.Status.Terminal() {
		c.Header("Refresh", "2")
	}
	a.renderUI(c, "task", page)
}

func (a *API) renderUI(c *gin.Context, name string, page uiPage) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := uiTemplates.ExecuteTemplate(c.Writer, name, page); err != nil {
		c.String(http.StatusInternalServerError, "template error")
	}
}
