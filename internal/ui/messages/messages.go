package messages

import "sshOrchestrator/internal/machine"

// StartEventMsg przenosi zmianę stanu maszyny do modelu postępu
type StartEventMsg machine.StartEvent

// AllStartedMsg kończy uruchamianie wszystkich maszyn
type AllStartedMsg struct {
	Err error
}
