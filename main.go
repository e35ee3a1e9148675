package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guabee/ncpbuf/ncp/bootstrap"
	conf "github.com/guabee/ncpbuf/ncp/config"
	"github.com/guabee/ncpbuf/ncp/debug"
	"github.com/guabee/ncpbuf/ncp/util"
)

var (
	BuildVersion = "v0.0.0-build.0"
	CommitID     = "Local"
	BuildTime    = "2006-01-02 15:04:05"
	BuildName    = "Spinel"
)

func main() {
	config := conf.ParseConfig()
	if config.Fork && !util.IsChildProcess() { // daemon it
		fmt.Printf("%s %s %s %s\n", BuildVersion, BuildName, CommitID, BuildTime)
		if conf.VersionOnly() {
			return
		}
		states := conf.StateReaderWriter{FileName: config.StateFile}
		supervisor := util.NewSupervisor(func(err error) bool {
			states.RecordRestart(err.Error())
			return false
		})
		if err := supervisor.Run(); err != nil {
			fmt.Println("supervisor stopped:", err)
			os.Exit(1)
		}
		return
	}
	if conf.VersionOnly() {
		fmt.Printf("%s %s %s %s\n", BuildVersion, BuildName, CommitID, BuildTime)
		return
	}
	conf.BuildName = BuildName

	logOptions := []debug.DebugOption{
		debug.WithDefaultLogLevel(config.LogLevel),
		debug.WithDebugLogModules(config.DebugModules),
		debug.WithDebugLogToFile(config.LogFile),
	}
	debug.Setup(logOptions...)

	server, err := bootstrap.StartServer(config)
	if err != nil {
		fmt.Println("start server failed:", err)
		os.Exit(1)
	}
	if util.HadException() {
		fmt.Println("restarted after a failure")
	}

	if !config.DisableDebug {
		go debug.StartServer(config.DebugPort, debug.WithStatusFunc(func() interface{} {
			return server.Status()
		}))
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c
	server.Stop()
}
