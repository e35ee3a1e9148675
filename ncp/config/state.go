package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// State holds the link counters that survive a restart.
type State struct {
	FramesSent     uint64 `json:"framesSent,omitempty"`
	FramesFailed   uint64 `json:"framesFailed,omitempty"`
	FramesReceived uint64 `json:"framesReceived,omitempty"`
	FramesRejected uint64 `json:"framesRejected,omitempty"`
	// set by the supervisor when the daemon runs with --fork
	Restarts uint64 `json:"restarts,omitempty"`
	LastExit string `json:"lastExit,omitempty"`
}

type StateReaderWriter struct {
	FileName string
}

func (rw StateReaderWriter) Read() (state State) {
	if rw.FileName == "" {
		return
	}
	byteValue, err := os.ReadFile(rw.FileName)
	if err == nil {
		err = json.Unmarshal(byteValue, &state)
		if err != nil {
			fmt.Println("Error reading state:", err)
		}
	}
	return
}

func (rw StateReaderWriter) Write(state State) {
	if rw.FileName == "" {
		return
	}
	jsonValue, _ := json.Marshal(state)
	err := os.WriteFile(rw.FileName, jsonValue, 0644)
	if err != nil {
		fmt.Println("Error writing state:", err)
	}
}

// RecordRestart counts one more restart caused by reason.
func (rw StateReaderWriter) RecordRestart(reason string) State {
	state := rw.Read()
	state.Restarts++
	state.LastExit = reason
	rw.Write(state)
	return state
}
