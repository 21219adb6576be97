package webdav

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_PathForm(t *testing.T) {
	e := newEnv(t)
	so := e.systemObject(t)
	v := e.ingest(t, so, "models", "Chair.json", `{"chair":true}`)

	resp := e.do(t, http.MethodGet, soPath("/download", so)+"/models/chair.json", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"chair":true}`, readBody(t, resp))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, `"`+v.StorageHash+`"`, resp.Header.Get("ETag"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Chair.json")

	events := e.audit.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, audit.KindDownload, ev.Kind)
	assert.Equal(t, repository.ObjectTypeModel, ev.ObjectType)
	assert.Equal(t, so, ev.ObjectID)
	assert.Equal(t, testUser, ev.UserID)
	assert.True(t, ev.Authenticated)
}

func TestDownload_SniffsUnknownExtension(t *testing.T) {
	e := newEnv(t)
	so := e.systemObject(t)
	e.ingest(t, so, "", "page.zzq", "<html><body>hello</body></html>")

	resp := e.do(t, http.MethodGet, soPath("/download", so)+"/page.zzq", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"), resp.Header.Get("Content-Type"))
	assert.Equal(t, "<html><body>hello</body></html>", readBody(t, resp))
}

func TestDownload_QueryForms(t *testing.T) {
	e := newEnv(t)
	so := e.systemObject(t)
	v1 := e.ingest(t, so, "", "a.json", "one")
	v2 := e.ingest(t, so, "", "a.json", "two")
	require.Equal(t, v1.IDAsset, v2.IDAsset)

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/download?idAssetVersion=%d", v1.IDAssetVersion), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "one", readBody(t, resp))

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/download?idAsset=%d", v1.IDAsset), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "two", readBody(t, resp))

	for _, q := range []string{
		"",
		"?idAsset=abc",
		"?idAsset=-4",
		fmt.Sprintf("?idAsset=%d&idAssetVersion=%d", v1.IDAsset, v1.IDAssetVersion),
		"?idAssetVersion=999999",
	} {
		resp = e.do(t, http.MethodGet, "/download"+q, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, q)
	}
}

func TestDownload_NotModified(t *testing.T) {
	e := newEnv(t)
	so := e.systemObject(t)
	v := e.ingest(t, so, "", "a.json", "{}")

	resp := e.do(t, http.MethodGet, soPath("/download", so)+"/a.json", nil, map[string]string{
		"If-None-Match": `"` + v.StorageHash + `"`,
	})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestDownload_ZipOfVersions(t *testing.T) {
	e := newEnv(t)
	so := e.systemObject(t)
	e.ingest(t, so, "", "a.txt", "alpha")
	e.ingest(t, so, "nested/dir", "b.txt", "beta")

	resp := e.do(t, http.MethodGet, soPath("/download", so), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), fmt.Sprintf("idSystemObject-%d.zip", so))

	body := []byte(readBody(t, resp))
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = buf.String()
	}
	assert.Equal(t, map[string]string{"a.txt": "alpha", "nested/dir/b.txt": "beta"}, contents)
}

func TestDownload_ZeroAssetMessage(t *testing.T) {
	e := newEnv(t)
	so := e.systemObject(t)

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/download?idSystemObject=%d", so), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("No Assets are connected to idSystemObject %d", so), readBody(t, resp))
}

func TestDownload_ReportsAndJobRuns(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wf := &repository.Workflow{}
	require.NoError(t, e.repo.CreateWorkflow(ctx, wf))
	html := &repository.WorkflowReport{IDWorkflow: wf.IDWorkflow, MimeType: "text/html", Data: "<p>done</p>"}
	require.NoError(t, e.repo.CreateWorkflowReport(ctx, html))
	js := &repository.WorkflowReport{IDWorkflow: wf.IDWorkflow, MimeType: "application/json", Data: `{"ok":true}`}
	require.NoError(t, e.repo.CreateWorkflowReport(ctx, js))
	run := &repository.JobRun{IDJob: 3, Status: "done", Result: true, Output: "converted 2 meshes"}
	require.NoError(t, e.repo.CreateJobRun(ctx, run))

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/download?idWorkflowReport=%d", html.IDWorkflowReport), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Equal(t, "<p>done</p>", readBody(t, resp))

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/download?idWorkflow=%d", wf.IDWorkflow), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	body := []byte(readBody(t, resp))
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		fmt.Sprintf("idWorkflowReport-%d.html", html.IDWorkflowReport),
		fmt.Sprintf("idWorkflowReport-%d.json", js.IDWorkflowReport),
	}, names)

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/download?idJobRun=%d", run.IDJobRun), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Equal(t, "converted 2 meshes", readBody(t, resp))

	empty := &repository.Workflow{}
	require.NoError(t, e.repo.CreateWorkflow(ctx, empty))
	resp = e.do(t, http.MethodGet, fmt.Sprintf("/download?idWorkflow=%d", empty.IDWorkflow), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownload_FailureStillAudited(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/download/idSystemObject-424242/x.obj", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	events := e.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindDownload, events[0].Kind)
	assert.Equal(t, int64(0), events[0].ObjectID)
}
