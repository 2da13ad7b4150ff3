package queue_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jo-hoe/sicoem/internal/backend/connectivity"
	"github.com/jo-hoe/sicoem/internal/backend/database"
	"github.com/jo-hoe/sicoem/internal/backend/docstore"
	"github.com/jo-hoe/sicoem/internal/backend/queue"
)

var _ = Describe("MergeHistory", func() {
	local := []*database.Report{
		{ID: 2, EquipmentCode: "A1", DateFormatted: "05/06/2024", TimeFormatted: "09:00", Synced: true},
		{ID: 1, EquipmentCode: "A1", DateFormatted: "03/06/2024", TimeFormatted: "10:30"},
	}

	It("lists local entries first and drops remote entries with a local date", func() {
		remote := []docstore.RemoteFile{
			{FileID: "f1", FileName: "OTM_A1_03-06-2024.pdf", Date: "03/06/2024"},
			{FileID: "f2", FileName: "OTM_A1_01-06-2024.pdf", Date: "01/06/2024"},
			{FileID: "f3", FileName: "OTM_A1_28-05-2024.pdf", Date: "28/05/2024"},
		}

		entries := queue.MergeHistory(local, remote)
		Expect(entries).To(HaveLen(4))
		Expect(entries[0].Source).To(Equal(queue.SourceLocal))
		Expect(entries[0].ReportID).To(Equal(int64(2)))
		Expect(entries[1].ReportID).To(Equal(int64(1)))
		Expect(entries[2].FileID).To(Equal("f2"))
		Expect(entries[3].FileID).To(Equal("f3"))
		Expect(entries[3].Source).To(Equal(queue.SourceDrive))
	})

	It("collapses one local and one remote record of the same day into one entry", func() {
		entries := queue.MergeHistory(local[1:], []docstore.RemoteFile{{FileID: "f1", Date: "03/06/2024"}})
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Source).To(Equal(queue.SourceLocal))
	})

	It("handles empty inputs", func() {
		Expect(queue.MergeHistory(nil, nil)).To(BeEmpty())
	})
})

var _ = Describe("FetchHistory", func() {
	var (
		ctx    context.Context
		db     *database.SQLiteDatabase
		remote *fakeRemote
		q      *queue.Queue
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = database.NewDatabase("sqlite", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)
		_, err = db.CreateReport(&database.Report{
			EquipmentCode: "A1", CapturedAt: time.Now(), DateFormatted: "03/06/2024",
			TimeFormatted: "10:30", TechnicianName: "Ana", Image: []byte{1},
		})
		Expect(err).NotTo(HaveOccurred())

		remote = &fakeRemote{listing: []docstore.RemoteFile{
			{FileID: "f1", Date: "03/06/2024"},
			{FileID: "f2", Date: "01/06/2024"},
		}}
		q = queue.NewQueue(queue.NewSQLitePendingStore(db), remote, db, connectivity.NewMonitor(true), queue.Options{})
	})

	It("merges local and remote entries", func() {
		entries, err := q.FetchHistory(ctx, "A1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Source).To(Equal(queue.SourceLocal))
		Expect(entries[1].FileID).To(Equal("f2"))
	})

	It("falls back to local entries when the remote fails", func() {
		remote.listErr = errors.New("timeout")
		entries, err := q.FetchHistory(ctx, "A1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Source).To(Equal(queue.SourceLocal))
	})
})
