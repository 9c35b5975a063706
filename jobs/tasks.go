package jobs

import (
	"github.com/hibiken/asynq"
)

// QueueDefault is the queue all billing jobs run on.
const QueueDefault = "default"

// Task types handled by the worker.
const (
	TaskRecurringInvoices = "invoices:recurring"
)

// NewRecurringInvoicesTask prepares the recurring-invoice generation task.
// The run carries no payload: the handler scans every schedule that is due.
func NewRecurringInvoicesTask() *asynq.Task {
	return asynq.NewTask(TaskRecurringInvoices, nil)
}
