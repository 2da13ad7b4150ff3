package queue_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/alicebob/miniredis/v2"
	"github.com/jo-hoe/sicoem/internal/backend/connectivity"
	"github.com/jo-hoe/sicoem/internal/backend/database"
	"github.com/jo-hoe/sicoem/internal/backend/queue"
	"github.com/jo-hoe/sicoem/internal/common"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("Queue", func() {
	var (
		ctx     context.Context
		db      *database.SQLiteDatabase
		remote  *fakeRemote
		monitor *connectivity.Monitor
		q       *queue.Queue
	)

	createReport := func(code string) int64 {
		now := time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC)
		id, err := db.CreateReport(&database.Report{
			EquipmentCode:  code,
			CapturedAt:     now,
			DateFormatted:  "03/06/2024",
			TimeFormatted:  "10:30",
			TechnicianName: "Ana",
			Image:          []byte{0xff, 0xd8},
		})
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	uploadFor := func(reportID int64, code string) queue.UploadRequest {
		return queue.UploadRequest{
			ReportID:      reportID,
			EquipmentCode: code,
			Document:      []byte("%PDF-1.3 " + code),
			Technician:    "Ana",
			Date:          "03/06/2024",
		}
	}

	synced := func(id int64) bool {
		report, err := db.GetReportByID(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(report).NotTo(BeNil())
		return report.Synced
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = database.NewDatabase("sqlite", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)

		remote = &fakeRemote{}
		monitor = connectivity.NewMonitor(true)
		q = queue.NewQueue(queue.NewSQLitePendingStore(db), remote, db, monitor, queue.Options{Timeout: time.Second})
	})

	Context("when online and the remote accepts", func() {
		It("delivers immediately and marks the report synced", func() {
			id := createReport("A1")
			result, err := q.Upload(ctx, uploadFor(id, "A1"))

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(queue.OutcomeDelivered))
			Expect(result.FileID).To(Equal("drive-OTM_A1_03-06-2024.pdf"))
			Expect(synced(id)).To(BeTrue())

			pending, err := q.Pending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})

		It("sends the base64 payload and derived file name", func() {
			id := createReport("A1")
			_, err := q.Upload(ctx, uploadFor(id, "A1"))
			Expect(err).NotTo(HaveOccurred())

			uploads := remote.uploaded()
			Expect(uploads).To(HaveLen(1))
			Expect(uploads[0].FileName).To(Equal("OTM_A1_03-06-2024.pdf"))
			data, err := common.DecodePayload(uploads[0].FileData)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("%PDF-1.3 A1"))
		})

		It("fills in the technician placeholder", func() {
			req := uploadFor(createReport("A1"), "A1")
			req.Technician = ""
			_, err := q.Upload(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(remote.uploaded()[0].Technician).To(Equal("Técnico"))
		})
	})

	Context("when the immediate attempt fails", func() {
		It("queues the task instead of returning an error", func() {
			remote.setFailing(true)
			id := createReport("A1")

			result, err := q.Upload(ctx, uploadFor(id, "A1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(queue.OutcomeQueued))
			Expect(result.TaskID).NotTo(BeEmpty())
			Expect(result.Reason).To(ContainSubstring("connection refused"))
			Expect(synced(id)).To(BeFalse())

			pending, err := q.Pending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].ID).To(Equal(result.TaskID))
		})
	})

	Context("when the payload cannot be built", func() {
		It("rejects an empty equipment code without queuing", func() {
			_, err := q.Upload(ctx, uploadFor(0, " "))
			Expect(err).To(MatchError(queue.ErrInvalidPayload))
			Expect(q.Pending(ctx)).To(BeEmpty())
		})

		It("rejects an empty document without queuing", func() {
			req := uploadFor(0, "A1")
			req.Document = nil
			_, err := q.Upload(ctx, req)
			Expect(err).To(MatchError(queue.ErrInvalidPayload))
			Expect(remote.attempts).To(BeZero())
		})

		It("rejects an empty date without queuing", func() {
			req := uploadFor(0, "A1")
			req.Date = " "
			_, err := q.Upload(ctx, req)
			Expect(err).To(MatchError(queue.ErrInvalidPayload))
			Expect(remote.attempts).To(BeZero())
			Expect(q.Pending(ctx)).To(BeEmpty())
		})
	})

	Context("when no remote is configured", func() {
		It("reports ErrRemoteNotConfigured", func() {
			unconfigured := queue.NewQueue(queue.NewSQLitePendingStore(db), nil, db, connectivity.NewMonitor(true), queue.Options{})
			_, err := unconfigured.Upload(ctx, uploadFor(0, "A1"))
			Expect(err).To(MatchError(queue.ErrRemoteNotConfigured))
		})
	})

	Context("when offline", func() {
		BeforeEach(func() {
			monitor.SetOnline(false)
		})

		It("queues without contacting the remote", func() {
			result, err := q.Upload(ctx, uploadFor(createReport("123456789012"), "123456789012"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(queue.OutcomeQueued))
			Expect(result.Reason).To(Equal("offline"))
			Expect(remote.attempts).To(BeZero())

			pending, err := q.Pending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].FileName).To(ContainSubstring("123456789012"))
		})

		It("delivers all queued tasks after one reconnect", func() {
			ids := make([]int64, 0, 3)
			for _, code := range []string{"A1", "B2", "C3"} {
				id := createReport(code)
				ids = append(ids, id)
				_, err := q.Upload(ctx, uploadFor(id, code))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(q.Pending(ctx)).To(HaveLen(3))

			monitor.SetOnline(true)

			Expect(q.Pending(ctx)).To(BeEmpty())
			for _, id := range ids {
				Expect(synced(id)).To(BeTrue())
			}
			uploads := remote.uploaded()
			Expect(uploads).To(HaveLen(3))
			Expect(uploads[0].EquipmentCode).To(Equal("A1"))
			Expect(uploads[2].EquipmentCode).To(Equal("C3"))
		})

		It("keeps tasks that still fail for the next reconnect", func() {
			id := createReport("A1")
			_, err := q.Upload(ctx, uploadFor(id, "A1"))
			Expect(err).NotTo(HaveOccurred())

			remote.setFailing(true)
			monitor.SetOnline(true)
			Expect(q.Pending(ctx)).To(HaveLen(1))
			Expect(synced(id)).To(BeFalse())

			remote.setFailing(false)
			monitor.SetOnline(false)
			monitor.SetOnline(true)
			Expect(q.Pending(ctx)).To(BeEmpty())
			Expect(synced(id)).To(BeTrue())
		})

		It("does not sweep again while staying online", func() {
			_, err := q.Upload(ctx, uploadFor(createReport("A1"), "A1"))
			Expect(err).NotTo(HaveOccurred())
			remote.setFailing(true)
			monitor.SetOnline(true)
			attempts := remote.attempts

			monitor.SetOnline(true)
			Expect(remote.attempts).To(Equal(attempts))
		})
	})

	Describe("RetrySweep", func() {
		It("returns the number of delivered tasks", func() {
			monitor.SetOnline(false)
			for _, code := range []string{"A1", "B2"} {
				_, err := q.Upload(ctx, uploadFor(createReport(code), code))
				Expect(err).NotTo(HaveOccurred())
			}
			delivered, err := q.RetrySweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(delivered).To(Equal(2))

			delivered, err = q.RetrySweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(delivered).To(BeZero())
		})

		It("keeps sweeping when a delivered task cannot be removed", func() {
			store := &flakyStore{PendingStore: queue.NewSQLitePendingStore(db), failRemove: map[string]bool{}}
			sweeper := queue.NewQueue(store, remote, db, connectivity.NewMonitor(false), queue.Options{})
			var stuck string
			for _, code := range []string{"A1", "B2"} {
				result, err := sweeper.Upload(ctx, uploadFor(createReport(code), code))
				Expect(err).NotTo(HaveOccurred())
				if stuck == "" {
					stuck = result.TaskID
				}
			}
			store.failRemove[stuck] = true

			delivered, err := sweeper.RetrySweep(ctx)
			Expect(err).To(MatchError(errRemove))
			Expect(delivered).To(Equal(1))
			Expect(remote.uploaded()).To(HaveLen(2))

			pending, err := sweeper.Pending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].ID).To(Equal(stuck))
		})
	})

	Context("when the base context is cancelled", func() {
		It("does not sweep on reconnect", func() {
			baseCtx, cancel := context.WithCancel(context.Background())
			signal := connectivity.NewMonitor(false)
			bounded := queue.NewQueue(queue.NewSQLitePendingStore(db), remote, db, signal, queue.Options{BaseContext: baseCtx})
			_, err := bounded.Upload(ctx, uploadFor(createReport("A1"), "A1"))
			Expect(err).NotTo(HaveOccurred())

			cancel()
			signal.SetOnline(true)

			Expect(remote.attempts).To(BeZero())
			Expect(bounded.Pending(ctx)).To(HaveLen(1))
		})
	})

	Context("across a restart", func() {
		It("retries the persisted task on the next reconnect", func() {
			path := filepath.Join(GinkgoT().TempDir(), "sicoem.db")

			first, err := database.NewDatabase("sqlite", path)
			Expect(err).NotTo(HaveOccurred())
			offline := connectivity.NewMonitor(false)
			before := queue.NewQueue(queue.NewSQLitePendingStore(first), remote, first, offline, queue.Options{})
			reportID, err := first.CreateReport(&database.Report{
				EquipmentCode: "A1", CapturedAt: time.Now(), DateFormatted: "03/06/2024",
				TimeFormatted: "10:30", TechnicianName: "Ana", Image: []byte{1},
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = before.Upload(ctx, uploadFor(reportID, "A1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Close()).To(Succeed())

			reopened, err := database.NewDatabase("sqlite", path)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(reopened.Close)
			signal := connectivity.NewMonitor(false)
			after := queue.NewQueue(queue.NewSQLitePendingStore(reopened), remote, reopened, signal, queue.Options{})
			Expect(after.Pending(ctx)).To(HaveLen(1))

			signal.SetOnline(true)
			Expect(after.Pending(ctx)).To(BeEmpty())
			report, err := reopened.GetReportByID(reportID)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Synced).To(BeTrue())
		})
	})

	Context("with the Redis pending store", func() {
		var store *queue.RedisPendingStore

		BeforeEach(func() {
			mr := miniredis.RunT(GinkgoT())
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			DeferCleanup(client.Close)
			store = queue.NewRedisPendingStore(client, "")
			q = queue.NewQueue(store, remote, db, monitor, queue.Options{})
		})

		It("keeps insertion order and removes single tasks", func() {
			for _, id := range []string{"t1", "t2", "t3"} {
				Expect(store.AppendTask(ctx, &database.UploadTask{ID: id, EquipmentCode: "A1"})).To(Succeed())
			}
			Expect(store.RemoveTask(ctx, "t2")).To(Succeed())
			Expect(store.RemoveTask(ctx, "missing")).To(Succeed())

			tasks, err := store.ListTasks(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(2))
			Expect(tasks[0].ID).To(Equal("t1"))
			Expect(tasks[1].ID).To(Equal("t3"))
		})

		It("drains on reconnect", func() {
			monitor.SetOnline(false)
			id := createReport("A1")
			_, err := q.Upload(ctx, uploadFor(id, "A1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Pending(ctx)).To(HaveLen(1))

			monitor.SetOnline(true)
			Expect(q.Pending(ctx)).To(BeEmpty())
			Expect(synced(id)).To(BeTrue())
		})
	})
})

var _ = Describe("FileName", func() {
	It("replaces date slashes with dashes", func() {
		Expect(queue.FileName("123456789012", "09/11/2024")).To(Equal("OTM_123456789012_09-11-2024.pdf"))
	})
})
