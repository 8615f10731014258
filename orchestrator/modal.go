package orchestrator

import (
	"github.com/ethereum/go-ethereum/common"
)

type ModalStatus string

const (
	ModalStatusIdle      ModalStatus = "idle"
	ModalStatusPending   ModalStatus = "pending"
	ModalStatusInitiated ModalStatus = "initiated"
	ModalStatusError     ModalStatus = "error"
)

// Modal is the ephemeral progress of the latest operation, shown to the user.
type Modal struct {
	Status    ModalStatus  `json:"status"`
	Operation Operation    `json:"operation,omitempty"`
	TxHash    *common.Hash `json:"txHash,omitempty"`
	Message   string       `json:"message,omitempty"`
}

func (o *Orchestrator) setModal(m Modal) {
	o.modalLock.Lock()
	defer o.modalLock.Unlock()
	o.modal = m
}

// Current returns the latest modal state.
func (o *Orchestrator) Current() Modal {
	o.modalLock.RLock()
	defer o.modalLock.RUnlock()
	return o.modal
}
