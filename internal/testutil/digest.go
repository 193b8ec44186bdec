// Package testutil provides an in-process digest API stand-in for
// tests and runnable examples.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mcculloh213/digestwatch/pkg/models"
)

// BrokerID identifies the stand-in broker in every response envelope.
const BrokerID = "fake-broker"

// TaskScript drives one task's observable lifecycle: every status
// request serves the next entry, the last entry repeats once the
// script runs out.
type TaskScript struct {
	Name     string              // task_name reported in envelopes
	Statuses []models.TaskStatus // statuses in observation order
	Result   any                 // task_result reported on SUCCESS
}

type taskState struct {
	script     TaskScript
	observed   int  // status requests served so far
	registered bool // transformation stored with the content provider
	file       string
}

// DigestServer is an in-process stand-in for the digest task API. It
// speaks the same envelope format, serves scripted status sequences
// and enforces the register-once rule.
type DigestServer struct {
	server *httptest.Server

	mu           sync.Mutex
	tasks        map[string]*taskState
	nextFile     int
	statusReqs   map[string]int
	registerReqs map[string]int
}

// StartDigestServer starts the stand-in. Callers own the returned
// server and must Close it.
func StartDigestServer() *DigestServer {
	d := &DigestServer{
		tasks:        make(map[string]*taskState),
		statusReqs:   make(map[string]int),
		registerReqs: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/digest/task/sleeper", d.sleeperHandler)
	mux.HandleFunc("/digest/task/", d.statusHandler)
	mux.HandleFunc("/digest/cp/register/", d.registerHandler)
	d.server = httptest.NewServer(mux)
	return d
}

// URL returns the base URL of the stand-in API.
func (d *DigestServer) URL() string {
	return d.server.URL
}

// Close shuts the stand-in down.
func (d *DigestServer) Close() {
	d.server.Close()
}

// AddTask registers a scripted task under the handle. Scripts without
// statuses idle on PENDING forever.
func (d *DigestServer) AddTask(handle string, script TaskScript) {
	if len(script.Statuses) == 0 {
		script.Statuses = []models.TaskStatus{models.PendingTaskStatus}
	}
	d.mu.Lock()
	d.tasks[handle] = &taskState{script: script}
	d.mu.Unlock()
}

// StatusRequests returns how many status reads the handle received.
func (d *DigestServer) StatusRequests(handle string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusReqs[handle]
}

// RegisterRequests returns how many registration attempts the handle
// received.
func (d *DigestServer) RegisterRequests(handle string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registerReqs[handle]
}

func (d *DigestServer) sleeperHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// The stand-in never sleeps; the delay argument is read off the
	// request but the lifecycle is scripted instead.
	var req struct {
		Delay int `json:"delay"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	handle := uuid.NewString()
	d.AddTask(handle, TaskScript{
		Name:     "tasks.sleeper",
		Statuses: []models.TaskStatus{models.PendingTaskStatus, models.StartedTaskStatus, models.SuccessTaskStatus},
		Result:   true,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"data": map[string]any{"task_id": handle},
	})
}

func (d *DigestServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handle := strings.TrimPrefix(r.URL.Path, "/digest/task/")

	d.mu.Lock()
	d.statusReqs[handle]++
	task, ok := d.tasks[handle]
	if !ok {
		d.mu.Unlock()
		// Unknown handles still answer with a status envelope.
		writeJSON(w, http.StatusNotFound, map[string]any{
			"broker_id": BrokerID,
			"data": map[string]any{
				"task_status": string(models.NotFoundTaskStatus),
				"task_result": nil,
			},
		})
		return
	}

	idx := task.observed
	if idx >= len(task.script.Statuses) {
		idx = len(task.script.Statuses) - 1
	}
	task.observed++
	status := task.script.Statuses[idx]
	var result any
	if status.Succeeded() {
		result = task.script.Result
	}
	name := task.script.Name
	d.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"broker_id": BrokerID,
		"data": map[string]any{
			"task_id":     handle,
			"task_name":   name,
			"task_status": string(status),
			"task_result": result,
		},
	})
}

func (d *DigestServer) registerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handle := strings.TrimPrefix(r.URL.Path, "/digest/cp/register/")

	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerReqs[handle]++

	task, ok := d.tasks[handle]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"broker_id": BrokerID,
			"data": map[string]any{
				"task_status": string(models.NotFoundTaskStatus),
				"task_result": nil,
			},
		})
		return
	}

	status := d.currentStatusLocked(task)
	if !status.Succeeded() || task.registered {
		// Echo the status record, like a conflicting registration does.
		var result any
		if status.Succeeded() {
			result = task.script.Result
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"broker_id": BrokerID,
			"data": map[string]any{
				"task_id":     handle,
				"task_name":   task.script.Name,
				"task_status": string(status),
				"task_result": result,
			},
		})
		return
	}

	task.registered = true
	d.nextFile++
	task.file = fmt.Sprintf("digest-%04d", d.nextFile)
	writeJSON(w, http.StatusCreated, map[string]any{
		"broker_id": BrokerID,
		"data":      map[string]any{"file": task.file},
	})
}

// currentStatusLocked returns the status the next read would serve.
// Callers hold d.mu.
func (d *DigestServer) currentStatusLocked(task *taskState) models.TaskStatus {
	idx := task.observed
	if idx >= len(task.script.Statuses) {
		idx = len(task.script.Statuses) - 1
	}
	return task.script.Statuses[idx]
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
