package config

type WorkerKeyStruct struct {
	PasscodeConsumeQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PasscodeConsumeQueue: "passcode_consume_queue",
}
