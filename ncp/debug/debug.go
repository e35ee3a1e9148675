package debug

import (
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sync"

	"github.com/guabee/ncpbuf/ncp/log"
)

// StatusFunc returns a json encodable snapshot of the running buffers.
type StatusFunc func() interface{}

var (
	statusMutex sync.Mutex
	statusFunc  StatusFunc
)

func writeJson(wr http.ResponseWriter, v interface{}) {
	bytes, err := json.Marshal(v)
	if err != nil {
		_, _ = wr.Write([]byte(err.Error()))
	} else {
		wr.Header().Set("Content-Type", "application/json")
		_, _ = wr.Write(bytes)
	}
}

func handleLogStatus(wr http.ResponseWriter, r *http.Request) {
	writeJson(wr, log.GetLoggersInfo())
}

func handleLogLevel(wr http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := query.Get("name")
	level := log.Level(query.Get("level"))

	if name == "" || !log.IsValidLevel(level) {
		wr.WriteHeader(http.StatusBadRequest)
		_, _ = wr.Write([]byte("bad name or level"))
		return
	}
	log.SetLogLevel(name, level)
	_, _ = wr.Write([]byte("ok"))
}

func handleBufStatus(wr http.ResponseWriter, r *http.Request) {
	statusMutex.Lock()
	f := statusFunc
	statusMutex.Unlock()

	if f == nil {
		_, _ = wr.Write([]byte("nil"))
		return
	}
	writeJson(wr, f())
}

func handleHelp(wr http.ResponseWriter, r *http.Request) {
	for _, handler := range pathHandlers {
		str := fmt.Sprintf("%s %v\n", handler.Path, handler.Params)
		_, _ = wr.Write([]byte(str))
	}
}

type debugHandlerInfo struct {
	Path   string
	Handle func(http.ResponseWriter, *http.Request)
	Params []string
}

var pathHandlers = []debugHandlerInfo{
	{"/logstatus", handleLogStatus, nil},
	{"/loglevel", handleLogLevel, []string{"name", "level"}},
	{"/bufstatus", handleBufStatus, nil},
}

func init() {
	for _, handler := range pathHandlers {
		http.HandleFunc(handler.Path, handler.Handle)
	}
	http.HandleFunc("/help", handleHelp)
}

type DebugOption func()

func WithDefaultLogLevel(level string) DebugOption {
	return func() {
		if level != "" {
			log.SetDefaultLevel(log.Level(level))
		}
	}
}

func WithDebugLogModules(modules []string) DebugOption {
	return func() {
		for _, moduleName := range modules {
			allSubModule := moduleName
			if moduleName != "*" && moduleName != "all" {
				allSubModule = fmt.Sprintf("%s*", moduleName)
			}
			log.SetLogLevel(allSubModule, log.DebugLevel)
		}
	}
}

func WithDebugLogToFile(filename string) DebugOption {
	return func() {
		if filename != "" {
			fd, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("open file %s for logging failed: %s.\n", filename, err.Error())
				return
			}
			log.SetLogOut(fd)
		}
	}
}

func WithStatusFunc(f StatusFunc) DebugOption {
	return func() {
		statusMutex.Lock()
		statusFunc = f
		statusMutex.Unlock()
	}
}

// Setup applies options without starting the server.
func Setup(options ...DebugOption) {
	for _, option := range options {
		option()
	}
}

func StartServer(port int, options ...DebugOption) {
	Setup(options...)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	err := http.ListenAndServe(addr, nil)
	if err != nil {
		fmt.Printf("debug server start failed %s\n", err)
	}
}
