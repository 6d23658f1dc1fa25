package ado_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/orgsync/internal/ado"
	"github.com/lherron/orgsync/internal/config"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/patch"
	"github.com/lherron/orgsync/internal/syncer"
)

var _ syncer.Endpoint = (*ado.Client)(nil)

func newClient(t *testing.T, handler http.HandlerFunc) *ado.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := ado.New(config.Endpoint{URL: srv.URL + "/contoso", Project: "Legacy Project", PAT: "secret"}, ado.Options{})
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewRequiresURLAndProject(t *testing.T) {
	_, err := ado.New(config.Endpoint{Project: "p"}, ado.Options{})
	assert.Error(t, err)
	_, err = ado.New(config.Endpoint{URL: "https://dev.azure.com/contoso"}, ado.Options{})
	assert.Error(t, err)

	c, err := ado.New(config.Endpoint{URL: "https://dev.azure.com/contoso/", Project: "p"}, ado.Options{})
	require.NoError(t, err)
	assert.Equal(t, "contoso", c.Organization())
	assert.Equal(t, "p", c.Project())
}

func TestQuerySendsAuthAndVersion(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contoso/Legacy Project/_apis/wit/wiql", r.URL.Path)
		assert.Equal(t, "7.0", r.URL.Query().Get("api-version"))
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte(":secret"))
		assert.Equal(t, want, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["query"], "SELECT")
		writeJSON(t, w, map[string]any{"workItems": []map[string]int{{"id": 3}, {"id": 9}}})
	})

	ids, err := c.Query(context.Background(), "SELECT [System.Id] FROM WorkItems")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9}, ids)
}

func TestBatchFetchSkipsOmittedItems(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/Legacy Project/_apis/wit/workitemsbatch", r.URL.Path)
		var body struct {
			IDs         []int    `json:"ids"`
			Fields      []string `json:"fields"`
			ErrorPolicy string   `json:"errorPolicy"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int{1, 2}, body.IDs)
		assert.Equal(t, "omit", body.ErrorPolicy)
		w.Write([]byte(`{"count":2,"value":[
			{"id":1,"rev":4,"fields":{"System.Id":1,"System.WorkItemType":"Bug","System.Title":"a","System.Parent":7}},
			null
		]}`))
	})

	items, err := c.BatchFetch(context.Background(), []int{1, 2}, domain.CoreFields)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Rev)
	assert.Equal(t, 7, items[0].ParentID)
	assert.Nil(t, items[0].Relations)

	_, err = c.BatchFetch(context.Background(), make([]int, ado.MaxBatch+1), nil)
	assert.Error(t, err)
}

func TestGetWorkItemExpandsRelations(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/Legacy Project/_apis/wit/workitems/5", r.URL.Path)
		assert.Equal(t, "relations", r.URL.Query().Get("$expand"))
		w.Write([]byte(`{"id":5,"rev":2,"url":"https://x/_apis/wit/workItems/5",
			"fields":{"System.WorkItemType":"Task","System.Title":"t"},
			"relations":[{"rel":"AttachedFile","url":"https://x/_apis/wit/attachments/abc","attributes":{"name":"a.txt"}},
			             {"rel":"System.LinkTypes.Hierarchy-Reverse","url":"https://x/_apis/wit/workItems/4"}]}`))
	})

	wi, err := c.GetWorkItem(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 4, wi.ParentID)
	require.Len(t, wi.Attachments(), 1)
	assert.Equal(t, "a.txt", wi.Attachments()[0].Name())
}

func TestGetWorkItemNotFound(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"TF401232: Work item 5 does not exist"}`, http.StatusNotFound)
	})

	_, err := c.GetWorkItem(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	var se *ado.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, domain.KindTransport, domain.Classify(err))
}

func TestCreateWorkItemSendsJSONPatch(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contoso/Legacy Project/_apis/wit/workitems/$User Story", r.URL.Path)
		assert.Equal(t, "application/json-patch+json", r.Header.Get("Content-Type"))
		var ops []patch.Operation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ops))
		require.Len(t, ops, 2)
		assert.Equal(t, "/fields/System.Title", ops[0].Path)
		w.Write([]byte(`{"id":11,"rev":1,"fields":{"System.WorkItemType":"User Story","System.Title":"x","Custom.SourceWorkitemId":"3"}}`))
	})

	p := patch.Patch{}.SetField(domain.FieldTitle, "x").SetField(domain.DefaultTrackingField, "3")
	wi, err := c.CreateWorkItem(context.Background(), "User Story", p)
	require.NoError(t, err)
	assert.Equal(t, 11, wi.ID)
	assert.Equal(t, "3", wi.StringField(domain.DefaultTrackingField))
	assert.NotNil(t, wi.Relations)
}

func TestUpdateWorkItemRevisionConflict(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{"precondition failed", http.StatusPreconditionFailed, `{"message":"test failed"}`},
		{"changed by someone else", http.StatusBadRequest, `{"message":"TF26071: This work item has been changed by someone else since you opened it."}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPatch, r.Method)
				http.Error(w, tc.body, tc.status)
			})
			_, err := c.UpdateWorkItem(context.Background(), 4, patch.Guarded(3).SetField(domain.FieldState, "Active"))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrRevisionMismatch)
			assert.Equal(t, domain.KindPrecondition, domain.Classify(err))
		})
	}
}

func TestUpdateWorkItemOtherFailure(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"TF401320: Rule Error"}`, http.StatusBadRequest)
	})
	_, err := c.UpdateWorkItem(context.Background(), 4, patch.Guarded(3))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRevisionMismatch)
}

func TestAttachmentRoundTrip(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/contoso/Legacy Project/_apis/wit/attachments", r.URL.Path)
			assert.Equal(t, "notes.txt", r.URL.Query().Get("fileName"))
			assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
			data, _ := io.ReadAll(r.Body)
			assert.Equal(t, "hello", string(data))
			w.Write([]byte(`{"id":"6f1c","url":"https://dev.azure.com/contoso/_apis/wit/attachments/6f1c?fileName=notes.txt"}`))
		case http.MethodGet:
			assert.Equal(t, "/contoso/Legacy Project/_apis/wit/attachments/6f1c", r.URL.Path)
			assert.Equal(t, "true", r.URL.Query().Get("download"))
			w.Write([]byte("hello"))
		}
	})

	ref, err := c.UploadAttachment(context.Background(), "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "6f1c", ref.ID)

	rc, err := c.DownloadAttachment(context.Background(), ref.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestListCommentsFollowsContinuation(t *testing.T) {
	calls := 0
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/contoso/Legacy Project/_apis/wit/workItems/8/comments", r.URL.Path)
		assert.Equal(t, "7.0-preview.3", r.URL.Query().Get("api-version"))
		if r.URL.Query().Get("continuationToken") == "" {
			w.Write([]byte(`{"comments":[{"id":1,"text":"one","createdDate":"2023-05-01T09:00:00Z","createdBy":{"displayName":"Ada"}}],"continuationToken":"next"}`))
			return
		}
		assert.Equal(t, "next", r.URL.Query().Get("continuationToken"))
		w.Write([]byte(`{"comments":[{"id":2,"text":"two","createdDate":"2023-05-02T09:00:00.123Z","createdBy":{"uniqueName":"bob@example.com"}}]}`))
	})

	comments, err := c.ListComments(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, comments, 2)
	assert.Equal(t, "Ada", comments[0].Author)
	assert.Equal(t, "bob@example.com", comments[1].Author)
	assert.Equal(t, time.Date(2023, 5, 1, 9, 0, 0, 0, time.UTC), comments[0].CreatedAt.UTC())
}

func TestAddComment(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "<p>hi</p>", body["text"])
		w.Write([]byte(`{"id":42,"text":"<p>hi</p>","createdDate":"2024-01-01T00:00:00Z","createdBy":{"displayName":"svc"}}`))
	})

	got, err := c.AddComment(context.Background(), 8, "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, 42, got.ID)
}

func TestNodeTreeAndCreate(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/contoso/Legacy Project/_apis/wit/classificationnodes/Iterations", r.URL.Path)
			assert.Equal(t, "100", r.URL.Query().Get("$depth"))
			w.Write([]byte(`{"id":1,"name":"Legacy Project","structureType":"iteration","children":[
				{"id":2,"name":"Sprint 1","structureType":"iteration","attributes":{"startDate":"2024-03-04T00:00:00Z","finishDate":"2024-03-17T00:00:00Z"}}]}`))
		case http.MethodPost:
			assert.Equal(t, "/contoso/Legacy Project/_apis/wit/classificationnodes/Iterations/Release 1/Sprint 2", r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Week 1", body["name"])
			w.Write([]byte(`{"id":9,"name":"Week 1","structureType":"iteration"}`))
		case http.MethodPatch:
			assert.Equal(t, "/contoso/Legacy Project/_apis/wit/classificationnodes/Iterations/Sprint 1", r.URL.Path)
			w.Write([]byte(`{}`))
		}
	})

	tree, err := c.GetNodeTree(context.Background(), domain.StructureIterations)
	require.NoError(t, err)
	sprint := tree.FindChild("Sprint 1")
	require.NotNil(t, sprint)
	require.NotNil(t, sprint.Attributes)
	assert.Equal(t, 2024, sprint.Attributes.StartDate.Year())

	created, err := c.CreateNode(context.Background(), domain.StructureIterations, "Release 1/Sprint 2", &domain.ClassificationNode{Name: "Week 1"})
	require.NoError(t, err)
	assert.Equal(t, 9, created.ID)

	require.NoError(t, c.UpdateNode(context.Background(), domain.StructureIterations, "Sprint 1", nil))
}

func TestProcessStates(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		base := "/contoso/_apis/work/processes/proc-1/workItemTypes/Custom.Bug/states"
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/workitemtypes"):
			w.Write([]byte(`{"value":[{"name":"Bug","referenceName":"Custom.Bug"}]}`))
		case r.Method == http.MethodGet:
			assert.Equal(t, base, r.URL.Path)
			w.Write([]byte(`{"value":[{"id":"s1","name":"New","stateCategory":"Proposed","order":1,"customizationType":"system"}]}`))
		case r.Method == http.MethodPost:
			assert.Equal(t, base, r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Triage", body["name"])
			assert.EqualValues(t, 2, body["order"])
			w.Write([]byte(`{"id":"s2","name":"Triage","stateCategory":"Proposed","order":2,"customizationType":"custom"}`))
		case r.Method == http.MethodPut:
			assert.Equal(t, base+"/s1", r.URL.Path)
			w.Write([]byte(`{}`))
		}
	})
	ctx := context.Background()

	types, err := c.ListWorkItemTypes(ctx, "proc-1")
	require.NoError(t, err)
	require.Len(t, types, 1)

	states, err := c.ListStates(ctx, "proc-1", "Custom.Bug")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.True(t, states[0].IsSystem())
	assert.Equal(t, domain.CategoryProposed, states[0].Category)

	created, err := c.CreateState(ctx, "proc-1", "Custom.Bug", domain.WorkflowState{Name: "Triage", Category: domain.CategoryProposed, Order: 2})
	require.NoError(t, err)
	assert.Equal(t, "s2", created.ID)

	require.NoError(t, c.HideState(ctx, "proc-1", "Custom.Bug", "s1"))
}
