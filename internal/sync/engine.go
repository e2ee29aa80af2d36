// Package sync implements the bidirectional reconciliation engine and the
// mutation façade around it: merging remote snapshots into the local state
// tree with stable identity mapping, and routing mutations either straight
// to the remote or through the durable queue.
package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/polishcrew/syncbridge/internal/state"
	"github.com/polishcrew/syncbridge/pkg/types"
	"github.com/sirupsen/logrus"
)

// Remote is the subset of the remote client the engine and façade need.
type Remote interface {
	Ready() bool
	SelectAll(ctx context.Context, table string) (json.RawMessage, error)
	UpsertReturning(ctx context.Context, table string, payload json.RawMessage) (json.RawMessage, error)
	InsertReturning(ctx context.Context, table string, payload json.RawMessage) (json.RawMessage, error)
	Invoke(ctx context.Context, functionName string, body json.RawMessage) (json.RawMessage, error)
}

// ServicesHook derives a job's service list from its vehicles. The host
// application may supply one; reconciliation calls it only when present.
type ServicesHook func(job *state.Job) []state.Service

// FetchAll retrieves the full current snapshot of the five remote record
// kinds, in sequence. The first retrieval error aborts the remaining
// fetches and is surfaced to the caller.
func FetchAll(ctx context.Context, remote Remote) (*types.Snapshot, error) {
	snapshot := &types.Snapshot{}

	if err := fetchInto(ctx, remote, "customers", &snapshot.Customers); err != nil {
		return nil, err
	}
	if err := fetchInto(ctx, remote, "quotes", &snapshot.Quotes); err != nil {
		return nil, err
	}
	if err := fetchInto(ctx, remote, "jobs", &snapshot.Jobs); err != nil {
		return nil, err
	}
	if err := fetchInto(ctx, remote, "appointments", &snapshot.Appointments); err != nil {
		return nil, err
	}
	if err := fetchInto(ctx, remote, "transactions", &snapshot.Transactions); err != nil {
		return nil, err
	}

	return snapshot, nil
}

func fetchInto(ctx context.Context, remote Remote, table string, dest any) error {
	raw, err := remote.SelectAll(ctx, table)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", table, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A non-array body carries no rows; treat it as empty.
		logrus.WithError(err).WithField("table", table).Warn("Ignoring malformed table body")
	}
	return nil
}

// Merge reconciles a remote snapshot into the local state tree, in place.
// It performs no network I/O. Stages run in a fixed order so later stages
// can reference clients created earlier, and re-running the merge with the
// same snapshot converges without creating duplicates.
func Merge(st *state.State, snapshot *types.Snapshot, hook ServicesHook) {
	if st == nil || snapshot == nil {
		return
	}
	mergeClients(st, snapshot.Customers)
	mergeJobs(st, snapshot, hook)
	mergeTransactions(st, snapshot.Transactions)
}

func mergeClients(st *state.State, customers []types.RemoteCustomer) {
	byID := make(map[string]*state.Client, len(st.Clients))
	for _, client := range st.Clients {
		byID[client.ID] = client
	}

	for _, customer := range customers {
		if customer.ID == "" {
			continue
		}
		if existing := byID[customer.ID]; existing != nil {
			if customer.Name != "" {
				existing.Name = customer.Name
			}
			if customer.Phone != "" {
				existing.Phone = customer.Phone
			}
			if customer.Email != "" {
				existing.Email = customer.Email
			}
			if customer.Notes != "" {
				existing.Notes = customer.Notes
			}
			continue
		}

		name := customer.Name
		if name == "" {
			name = "Client"
		}
		fresh := &state.Client{
			ID:       customer.ID,
			Name:     name,
			Phone:    customer.Phone,
			Email:    customer.Email,
			Notes:    customer.Notes,
			Discount: state.Discount{Type: "none"},
			Vehicles: []state.Vehicle{},
		}
		st.Clients = append(st.Clients, fresh)
		byID[customer.ID] = fresh
	}

	state.SortClientsByName(st.Clients)
}

// jobIndex maps remote-kind keys (quote:<id>, appt:<id>, job:<id>) and
// local ids (local:<id>) to existing jobs. A job may occupy several keys
// at once.
func buildJobIndex(jobs []*state.Job) map[string]*state.Job {
	index := make(map[string]*state.Job, len(jobs)*2)
	for _, job := range jobs {
		if job.Remote.JobID != "" {
			index["job:"+job.Remote.JobID] = job
		}
		if job.Remote.QuoteID != "" {
			index["quote:"+job.Remote.QuoteID] = job
		}
		if job.Remote.AppointmentID != "" {
			index["appt:"+job.Remote.AppointmentID] = job
		}
		if job.ID != "" {
			index["local:"+job.ID] = job
		}
	}
	return index
}

func mergeJobs(st *state.State, snapshot *types.Snapshot, hook ServicesHook) {
	index := buildJobIndex(st.Jobs)

	// upsert resolves the target job by trying keys in order: the record's
	// own remote-kind key first, then any linked keys, then the local-id
	// fallback for records created locally that have never synced. When
	// nothing matches, a blank job is created and registered under the
	// primary key.
	upsert := func(keys []string, update func(job *state.Job)) {
		var existing *state.Job
		for _, key := range keys {
			if key == "" {
				continue
			}
			if existing = index[key]; existing != nil {
				break
			}
		}
		if existing != nil {
			update(existing)
			return
		}
		created := state.NewBlankJob()
		update(created)
		st.Jobs = append(st.Jobs, created)
		index[keys[0]] = created
	}

	for _, quote := range snapshot.Quotes {
		if quote.ID == "" {
			continue
		}
		q := quote
		upsert([]string{"quote:" + q.ID, "local:" + q.ID}, func(job *state.Job) {
			job.Remote.QuoteID = q.ID
			if job.ID == "" {
				job.ID = uuid.New().String()
			}
			if q.CustomerID != "" {
				job.ClientID = q.CustomerID
			}
			status := q.Status
			if status == "" {
				status = state.StatusQuoted
			}
			if status == "Won" {
				status = state.StatusBooked
			}
			job.Status = status
			if q.Pkg != "" {
				job.Pkg = q.Pkg
			}
			if q.Size != "" {
				job.Size = q.Size
			}
			if q.Notes != "" {
				job.Notes = q.Notes
			}
			if q.CreatedAt != "" {
				job.CreatedAt = q.CreatedAt
			}
			job.Vehicles = DeserializeVehicles(q)
			if hook != nil {
				job.Services = hook(job)
			}
			if total := float64(q.Total); total != 0 {
				job.RemoteTotal = total
			}
		})
	}

	for _, appointment := range snapshot.Appointments {
		if appointment.ID == "" {
			continue
		}
		a := appointment
		upsert([]string{"appt:" + a.ID, "local:" + a.ID}, func(job *state.Job) {
			job.Remote.AppointmentID = a.ID
			if job.ID == "" {
				job.ID = uuid.New().String()
			}
			if a.CustomerID != "" {
				job.ClientID = a.CustomerID
			}
			if job.Status == "" || job.Status == state.StatusQuoted {
				job.Status = state.StatusNew
			}
			if a.Notes != "" {
				job.Notes = a.Notes
			}
			if a.Date != "" {
				job.Schedule.Date = a.Date
			}
			if a.Time != "" {
				job.Schedule.Start = a.Time
			}
			if services := DeserializeServices(a.Services); services != nil {
				job.Services = services
			}
			if job.RemoteTotal == 0 {
				job.RemoteTotal = float64(a.Total)
			}
		})
	}

	for _, srvJob := range snapshot.Jobs {
		if srvJob.ID == "" {
			continue
		}
		j := srvJob
		keys := []string{"job:" + j.ID}
		if j.QuoteID != "" {
			keys = append(keys, "quote:"+j.QuoteID)
		}
		keys = append(keys, "local:"+j.ID)
		upsert(keys, func(job *state.Job) {
			job.Remote.JobID = j.ID
			if j.QuoteID != "" {
				job.Remote.QuoteID = j.QuoteID
			}
			if job.ID == "" {
				job.ID = uuid.New().String()
			}
			if j.CustomerID != "" {
				job.ClientID = j.CustomerID
			}
			switch {
			case j.Status != "":
				job.Status = j.Status
			case job.Status == "":
				job.Status = state.StatusBooked
			}
			if j.Notes != "" {
				job.Notes = j.Notes
			}
			if j.StartTime != "" {
				job.Schedule.Date = sliceTimestamp(j.StartTime, 0, 10)
				job.Schedule.Start = sliceTimestamp(j.StartTime, 11, 16)
			}
			if j.EndTime != "" {
				job.Schedule.End = sliceTimestamp(j.EndTime, 11, 16)
			}
			if total := float64(j.Total); total != 0 {
				job.RemoteTotal = total
			}
		})
	}
}

func mergeTransactions(st *state.State, transactions []types.RemoteTransaction) {
	byRemote := make(map[string]*state.Transaction, len(st.Transactions))
	for _, tx := range st.Transactions {
		if tx.Remote.TransactionID != "" {
			byRemote[tx.Remote.TransactionID] = tx
		}
	}

	for _, remote := range transactions {
		if remote.ID == "" {
			continue
		}
		if record := byRemote[remote.ID]; record != nil {
			if amount := float64(remote.Amount); amount != 0 {
				record.Amount = amount
			}
			if remote.Method != "" {
				record.Payment = remote.Method
			}
			if remote.Date != "" {
				record.Date = remote.Date
			}
			if remote.CustomerID != "" {
				record.ClientID = remote.CustomerID
			}
			if remote.JobID != "" {
				record.JobID = remote.JobID
			}
			continue
		}

		txType := state.TxExpense
		if remote.Type == "deposit" || remote.Type == "balance" {
			txType = state.TxIncome
		}
		payment := remote.Method
		if payment == "" {
			payment = "Card"
		}
		record := &state.Transaction{
			ID:       uuid.New().String(),
			Type:     txType,
			Payment:  payment,
			Amount:   float64(remote.Amount),
			Date:     remote.Date,
			ClientID: remote.CustomerID,
			JobID:    remote.JobID,
			Remote:   state.TransactionRef{TransactionID: remote.ID},
		}
		st.Transactions = append(st.Transactions, record)
		byRemote[remote.ID] = record
	}
}

// sliceTimestamp extracts a substring of a combined timestamp
// (date = chars 0-10, time = chars 11-16), tolerating short values.
func sliceTimestamp(s string, start, end int) string {
	if len(s) <= start {
		return ""
	}
	if len(s) < end {
		end = len(s)
	}
	return s[start:end]
}
