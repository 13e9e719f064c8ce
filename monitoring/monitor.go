// Package monitoring turns a running simulation into a small web server so
// the clock can be observed and controlled from outside the process.
package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"

	"github.com/tempuslab/tempus/sim"
	"github.com/tempuslab/tempus/sim/queueing"
)

// Monitor exposes one clock and its resource containers over an HTTP API.
type Monitor struct {
	clock      *sim.Clock
	portNumber int
	port       int

	dequesLock sync.Mutex
	deques     []queueing.Deque

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterClock registers the clock that drives the simulation.
func (m *Monitor) RegisterClock(c *sim.Clock) {
	m.clock = c
}

// RegisterDeque registers a resource container to be listed by fill level.
func (m *Monitor) RegisterDeque(d queueing.Deque) {
	m.dequesLock.Lock()
	defer m.dequesLock.Unlock()

	m.deques = append(m.deques, d)
}

// StartServer starts the monitor as a web server, on the configured port or
// a random one.
func (m *Monitor) StartServer() error {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/pause", m.pauseClock)
	r.HandleFunc("/api/continue", m.continueClock)
	r.HandleFunc("/api/run", m.runClock)
	r.HandleFunc("/api/snapshot", m.snapshot)
	r.HandleFunc("/api/deques", m.listDeques)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resources", m.listResources)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return err
	}

	m.port = listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(os.Stderr,
		"Monitoring simulation with http://localhost:%d\n", m.port)

	go func() {
		dieOnErr(http.Serve(listener, nil))
	}()

	return nil
}

// Port returns the port the server listens on, 0 before StartServer.
func (m *Monitor) Port() int {
	return m.port
}

// OpenDashboard opens the monitor's API root in the default browser.
func (m *Monitor) OpenDashboard() error {
	if m.port == 0 {
		return errors.New("monitor server not started")
	}

	return browser.OpenURL(fmt.Sprintf("http://localhost:%d/api/snapshot",
		m.port))
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%.10f}", m.clock.CurrentTime())
}

func (m *Monitor) pauseClock(w http.ResponseWriter, _ *http.Request) {
	if err := m.clock.Stop(); err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "{\"error\":%q}", err.Error())

		return
	}

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueClock(w http.ResponseWriter, _ *http.Request) {
	go func() {
		if _, err := m.clock.Resume(); err != nil {
			log.Print(err)
		}
	}()

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) runClock(w http.ResponseWriter, r *http.Request) {
	durationStr := r.URL.Query().Get("duration")

	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil || duration <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "{\"error\":\"invalid duration %q\"}", durationStr)

		return
	}

	go func() {
		if _, err := m.clock.Run(sim.VTime(duration)); err != nil {
			log.Print(err)
		}
	}()

	_, err = w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) snapshot(w http.ResponseWriter, _ *http.Request) {
	bytes, err := json.Marshal(m.clock.Snapshot())
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) listDeques(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := dequesParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "{\"error\":%q}", err.Error())

		return
	}

	selected := m.sortAndSelectDeques(limit, offset)

	fmt.Fprint(w, "[")
	for i, d := range selected {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "{\"deque\":%q,\"level\":%d,\"cap\":%d}",
			d.Name(), d.Size(), d.Capacity())
	}
	fmt.Fprint(w, "]")
}

func dequesParseParams(r *http.Request) (limit, offset int, err error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "0"
	}
	limit, err = strconv.Atoi(limitStr)
	if err != nil {
		return 0, 0, err
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr == "" {
		offsetStr = "0"
	}
	offset, err = strconv.Atoi(offsetStr)
	if err != nil {
		return limit, 0, err
	}

	return limit, offset, nil
}

func dequePercent(d queueing.Deque) float64 {
	return float64(d.Size()) / float64(d.Capacity())
}

func (m *Monitor) sortAndSelectDeques(limit, offset int) []queueing.Deque {
	m.dequesLock.Lock()
	sorted := make([]queueing.Deque, len(m.deques))
	copy(sorted, m.deques)
	m.dequesLock.Unlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return dequePercent(sorted[i]) > dequePercent(sorted[j])
	})

	if offset > len(sorted) {
		offset = len(sorted)
	}
	sorted = sorted[offset:]

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}

	return sorted
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := newProgressBar(name, total)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the listing.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bytes, err := json.Marshal(m.progressBars)
	m.progressBarsLock.Unlock()
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memoryInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
