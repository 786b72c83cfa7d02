package config

type WorkerKeyStruct struct {
	PushProgressQueue   string
	RecordAttemptsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PushProgressQueue:   "push_progress_queue",
	RecordAttemptsQueue: "record_attempts_queue",
}
