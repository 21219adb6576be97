package testing

import (
	"testing"
	"time"

	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWorkflowTests covers workflows and their reports.
func (suite *StoreTestSuite) RunWorkflowTests(t *testing.T) {
	t.Run("ReportsForWorkflow", suite.testReportsForWorkflow)
	t.Run("ReportsForWorkflowSet", suite.testReportsForWorkflowSet)
	t.Run("ReportsForWorkflow_None", suite.testReportsNone)
	t.Run("CreateReport_UnknownWorkflow", suite.testReportUnknownWorkflow)
	t.Run("GetWorkflowReport_NotFound", suite.testGetReportNotFound)
}

// RunJobRunTests covers job runs.
func (suite *StoreTestSuite) RunJobRunTests(t *testing.T) {
	t.Run("JobRun_RoundTrip", suite.testJobRunRoundTrip)
	t.Run("JobRun_NotFound", suite.testJobRunNotFound)
}

func mustReport(t *testing.T, store repository.Store, idWorkflow int64, data string) *repository.WorkflowReport {
	t.Helper()
	r := &repository.WorkflowReport{IDWorkflow: idWorkflow, MimeType: "text/html", Data: data}
	require.NoError(t, store.CreateWorkflowReport(testContext(), r))
	return r
}

func (suite *StoreTestSuite) testReportsForWorkflow(t *testing.T) {
	store := suite.NewStore(t)
	wf := &repository.Workflow{}
	require.NoError(t, store.CreateWorkflow(testContext(), wf))

	r1 := mustReport(t, store, wf.IDWorkflow, "<p>one</p>")
	r2 := mustReport(t, store, wf.IDWorkflow, "<p>two</p>")

	reports, err := store.GetWorkflowReportsForWorkflow(testContext(), wf.IDWorkflow)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, r1.IDWorkflowReport, reports[0].IDWorkflowReport)
	assert.Equal(t, r2.IDWorkflowReport, reports[1].IDWorkflowReport)

	got, err := store.GetWorkflowReport(testContext(), r2.IDWorkflowReport)
	require.NoError(t, err)
	assert.Equal(t, "<p>two</p>", got.Data)
	assert.Equal(t, "text/html", got.MimeType)
}

func (suite *StoreTestSuite) testReportsForWorkflowSet(t *testing.T) {
	store := suite.NewStore(t)
	const set = int64(900)

	wfA := &repository.Workflow{IDWorkflowSet: set}
	wfB := &repository.Workflow{IDWorkflowSet: set}
	wfC := &repository.Workflow{}
	require.NoError(t, store.CreateWorkflow(testContext(), wfA))
	require.NoError(t, store.CreateWorkflow(testContext(), wfB))
	require.NoError(t, store.CreateWorkflow(testContext(), wfC))

	mustReport(t, store, wfA.IDWorkflow, "a")
	mustReport(t, store, wfB.IDWorkflow, "b")
	mustReport(t, store, wfC.IDWorkflow, "c")

	reports, err := store.GetWorkflowReportsForWorkflowSet(testContext(), set)
	require.NoError(t, err)

	data := make([]string, 0, len(reports))
	for _, r := range reports {
		data = append(data, r.Data)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, data)
}

func (suite *StoreTestSuite) testReportsNone(t *testing.T) {
	store := suite.NewStore(t)
	wf := &repository.Workflow{}
	require.NoError(t, store.CreateWorkflow(testContext(), wf))

	reports, err := store.GetWorkflowReportsForWorkflow(testContext(), wf.IDWorkflow)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func (suite *StoreTestSuite) testReportUnknownWorkflow(t *testing.T) {
	store := suite.NewStore(t)

	err := store.CreateWorkflowReport(testContext(), &repository.WorkflowReport{IDWorkflow: 31337})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func (suite *StoreTestSuite) testGetReportNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetWorkflowReport(testContext(), 31337)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func (suite *StoreTestSuite) testJobRunRoundTrip(t *testing.T) {
	store := suite.NewStore(t)
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &repository.JobRun{
		IDJob:     4,
		Status:    "Done",
		Result:    true,
		Output:    "cook finished",
		DateStart: start,
		DateEnd:   start.Add(time.Minute),
	}
	require.NoError(t, store.CreateJobRun(testContext(), run))

	got, err := store.GetJobRun(testContext(), run.IDJobRun)
	require.NoError(t, err)
	assert.Equal(t, "cook finished", got.Output)
	assert.True(t, got.Result)
	assert.True(t, start.Equal(got.DateStart))
	assert.True(t, start.Add(time.Minute).Equal(got.DateEnd))
}

func (suite *StoreTestSuite) testJobRunNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetJobRun(testContext(), 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
