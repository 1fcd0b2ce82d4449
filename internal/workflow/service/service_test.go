package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cratekeeper/internal/audit"
	auditstore "cratekeeper/internal/audit/store"
	"cratekeeper/internal/events"
	"cratekeeper/internal/signature"
	"cratekeeper/internal/workflow/metrics"
	"cratekeeper/internal/workflow/models"
	"cratekeeper/internal/workflow/store"
	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
	"cratekeeper/pkg/platform/tx"
	"cratekeeper/pkg/requestcontext"
)

const testPassword = "correct horse battery staple"

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *capturingPublisher) Publish(event events.DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) all() []events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.DomainEvent(nil), p.events...)
}

type fixture struct {
	service     *Service
	requests    *store.MemoryRequestStore
	crates      *store.MemoryCrateStore
	audit       *auditstore.Memory
	published   *capturingPublisher
	credentials *signature.MemoryCredentialStore

	unitID      id.UnitID
	otherUnitID id.UnitID
	centralUnit id.UnitID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		requests:    store.NewMemoryRequestStore(),
		crates:      store.NewMemoryCrateStore(),
		audit:       auditstore.NewMemory(),
		published:   &capturingPublisher{},
		credentials: signature.NewMemoryCredentialStore(),
		unitID:      id.NewUnitID(),
		otherUnitID: id.NewUnitID(),
		centralUnit: id.NewUnitID(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = New(Deps{
		Requests:  f.requests,
		Crates:    f.crates,
		SendBacks: store.NewMemorySendBackStore(),
		Runner:    tx.NewMemoryRunner(),
		Verifier:  signature.NewBcryptVerifier(f.credentials),
		Audit:     audit.NewPublisher(f.audit, nil, logger),
		Emitter:   events.NewEmitter(f.centralUnit),
		Publisher: f.published,
		Metrics:   metrics.Nop(),
		Logger:    logger,
	})
	return f
}

// user returns a context authenticated as a new user of the given role in
// the fixture's unit, with a signature credential on file.
func (f *fixture) user(t *testing.T, role id.Role) (context.Context, id.UserID) {
	t.Helper()
	return f.userInUnit(t, role, f.unitID)
}

func (f *fixture) userInUnit(t *testing.T, role id.Role, unitID id.UnitID) (context.Context, id.UserID) {
	t.Helper()
	userID := id.NewUserID()
	require.NoError(t, f.credentials.SetPassword(userID, testPassword))
	ctx := requestcontext.WithActor(context.Background(), userID, unitID, role)
	return ctx, userID
}

func proof() signature.Proof {
	return signature.Proof{Password: testPassword}
}

// storageApproved drives a fresh storage request to Approved and returns it.
func (f *fixture) storageApproved(t *testing.T) *models.Request {
	t.Helper()
	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateStorage(userCtx, CreateStorageInput{Purpose: "quarterly records"})
	require.NoError(t, err)

	headCtx, _ := f.user(t, id.RoleSectionHead)
	request, err = f.service.Transition(headCtx, request.ID, id.TransitionApprove,
		TransitionInput{ExpectedVersion: request.Version, Proof: proof()})
	require.NoError(t, err)
	return request
}

// withdrawalIssued drives a withdrawal request to Issued against an archived
// crate and returns request and crate.
func (f *fixture) withdrawalIssued(t *testing.T) (*models.Request, *models.Crate) {
	t.Helper()
	request, crate := f.withdrawalAllocated(t)

	storeCtx, _ := f.user(t, id.RoleStoreHead)
	request, err := f.service.Transition(storeCtx, request.ID, id.TransitionIssue,
		TransitionInput{ExpectedVersion: request.Version})
	require.NoError(t, err)

	crate, err = f.crates.Get(context.Background(), crate.ID)
	require.NoError(t, err)
	return request, crate
}

func (f *fixture) withdrawalAllocated(t *testing.T) (*models.Request, *models.Crate) {
	t.Helper()
	crate := f.archivedCrate(t)

	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateWithdrawal(userCtx, CreateWithdrawalInput{
		CrateID:            crate.ID,
		Purpose:            "annual inspection",
		ExpectedReturnDate: time.Now().Add(14 * 24 * time.Hour),
	})
	require.NoError(t, err)

	headCtx, _ := f.user(t, id.RoleSectionHead)
	request, err = f.service.Transition(headCtx, request.ID, id.TransitionApprove,
		TransitionInput{ExpectedVersion: request.Version, Proof: proof()})
	require.NoError(t, err)

	storeCtx, _ := f.user(t, id.RoleStoreHead)
	request, err = f.service.Transition(storeCtx, request.ID, id.TransitionAllocateStorage,
		TransitionInput{ExpectedVersion: request.Version})
	require.NoError(t, err)
	return request, crate
}

// archivedCrate seeds a crate already stored in the archive.
func (f *fixture) archivedCrate(t *testing.T) *models.Crate {
	t.Helper()
	crate := models.NewCrate(f.unitID, false, time.Now())
	crate.ApplyAllocation("row 4, shelf B", time.Now())
	require.NoError(t, f.crates.Create(context.Background(), crate))
	return crate
}

func TestCreateStorageCreatesCrateAndPendingRequest(t *testing.T) {
	f := newFixture(t)
	ctx, userID := f.user(t, id.RoleUser)

	request, err := f.service.CreateStorage(ctx, CreateStorageInput{Purpose: "payroll archive"})
	require.NoError(t, err)

	assert.Equal(t, id.StatusPending, request.Status)
	assert.Equal(t, int64(1), request.Version)
	assert.Equal(t, userID, request.SubmittedBy)
	require.NotNil(t, request.CrateID)

	crate, err := f.crates.Get(ctx, *request.CrateID)
	require.NoError(t, err)
	assert.Equal(t, id.CrateActive, crate.Status)
	assert.Nil(t, crate.StorageLocation)

	records := f.audit.All()
	require.Len(t, records, 1)
	assert.Equal(t, "create", records[0].Action)

	published := f.published.all()
	require.Len(t, published, 1)
	assert.Equal(t, events.ActionCreated, published[0].Action)
}

func TestSystemAdminCannotCreate(t *testing.T) {
	f := newFixture(t)
	ctx, _ := f.user(t, id.RoleSystemAdmin)

	_, err := f.service.CreateStorage(ctx, CreateStorageInput{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestFullWithdrawalLifecycle(t *testing.T) {
	f := newFixture(t)
	request, crate := f.withdrawalIssued(t)
	assert.Equal(t, id.StatusIssued, request.Status)
	assert.Equal(t, id.CrateWithdrawn, crate.Status)

	storeCtx, _ := f.user(t, id.RoleStoreHead)
	request, err := f.service.Transition(storeCtx, request.ID, id.TransitionReturnDocs,
		TransitionInput{ExpectedVersion: request.Version})
	require.NoError(t, err)
	assert.Equal(t, id.StatusReturned, request.Status)

	crate, err = f.crates.Get(context.Background(), crate.ID)
	require.NoError(t, err)
	assert.Equal(t, id.CrateActive, crate.Status, "returned crate is back in circulation")

	request, err = f.service.Transition(storeCtx, request.ID, id.TransitionComplete,
		TransitionInput{ExpectedVersion: request.Version})
	require.NoError(t, err)
	assert.Equal(t, id.StatusCompleted, request.Status)
	assert.NotNil(t, request.CompletedAt)
}

func TestIssueEmitsOneAuditRecordAndBothEvents(t *testing.T) {
	f := newFixture(t)
	request, _ := f.withdrawalAllocated(t)

	auditBefore := len(f.audit.All())
	publishedBefore := len(f.published.all())

	storeCtx, _ := f.user(t, id.RoleStoreHead)
	request, err := f.service.Transition(storeCtx, request.ID, id.TransitionIssue,
		TransitionInput{ExpectedVersion: request.Version})
	require.NoError(t, err)

	records := f.audit.All()
	require.Len(t, records, auditBefore+1)
	last := records[len(records)-1]
	assert.Equal(t, "issue", last.Action)
	assert.Equal(t, id.StatusAllocated.String(), last.PreviousStatus)
	assert.Equal(t, id.StatusIssued.String(), last.NewStatus)

	published := f.published.all()[publishedBefore:]
	require.Len(t, published, 2, "one request event, one crate event")
	assert.Equal(t, "request", published[0].Entity)
	assert.Equal(t, request.Status.String(), published[0].Data.Status)
	assert.Equal(t, "crate", published[1].Entity)
	assert.Equal(t, id.CrateWithdrawn.String(), published[1].Data.Status)
	assert.Equal(t, []events.Scope{events.UnitScope(f.unitID)}, published[0].Scopes)
}

func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateStorage(userCtx, CreateStorageInput{})
	require.NoError(t, err)

	headCtx, _ := f.user(t, id.RoleSectionHead)
	otherHeadCtx, _ := f.user(t, id.RoleSectionHead)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, ctx := range []context.Context{headCtx, otherHeadCtx} {
		wg.Add(1)
		go func(ctx context.Context) {
			defer wg.Done()
			_, err := f.service.Transition(ctx, request.ID, id.TransitionApprove,
				TransitionInput{ExpectedVersion: request.Version, Proof: proof()})
			results <- err
		}(ctx)
	}
	wg.Wait()
	close(results)

	var conflicts, successes int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		require.True(t, dErrors.HasCode(err, dErrors.CodeConflict) || dErrors.HasCode(err, dErrors.CodeForbidden),
			"loser must fail on version or on the already-moved status, got %v", err)
		conflicts++
	}
	assert.Equal(t, 1, successes, "exactly one approval commits")
	assert.Equal(t, 1, conflicts)

	stored, err := f.requests.Get(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, id.StatusApproved, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestResubmitIsSubmitterOnly(t *testing.T) {
	f := newFixture(t)
	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateStorage(userCtx, CreateStorageInput{})
	require.NoError(t, err)

	headCtx, _ := f.user(t, id.RoleSectionHead)
	request, err = f.service.Transition(headCtx, request.ID, id.TransitionSendBack,
		TransitionInput{ExpectedVersion: request.Version, Reason: "missing inventory list"})
	require.NoError(t, err)
	assert.Equal(t, id.StatusSentBack, request.Status)

	strangerCtx, _ := f.user(t, id.RoleUser)
	_, err = f.service.Transition(strangerCtx, request.ID, id.TransitionSubmit,
		TransitionInput{ExpectedVersion: request.Version})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	request, err = f.service.Transition(userCtx, request.ID, id.TransitionSubmit,
		TransitionInput{ExpectedVersion: request.Version})
	require.NoError(t, err)
	assert.Equal(t, id.StatusPending, request.Status)
}

func TestSendBackRequiresReason(t *testing.T) {
	f := newFixture(t)
	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateStorage(userCtx, CreateStorageInput{})
	require.NoError(t, err)

	headCtx, _ := f.user(t, id.RoleSectionHead)
	_, err = f.service.Transition(headCtx, request.ID, id.TransitionSendBack,
		TransitionInput{ExpectedVersion: request.Version})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSignatureFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateStorage(userCtx, CreateStorageInput{})
	require.NoError(t, err)

	auditBefore := len(f.audit.All())
	publishedBefore := len(f.published.all())

	headCtx, _ := f.user(t, id.RoleSectionHead)
	_, err = f.service.Transition(headCtx, request.ID, id.TransitionApprove,
		TransitionInput{ExpectedVersion: request.Version, Proof: signature.Proof{Password: "guess"}})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSignature))

	stored, err := f.requests.Get(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, id.StatusPending, stored.Status, "status unchanged")
	assert.Equal(t, request.Version, stored.Version)
	assert.Len(t, f.audit.All(), auditBefore, "no audit record")
	assert.Len(t, f.published.all(), publishedBefore, "no event")
}

func TestRejectRecordsReasonAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateStorage(userCtx, CreateStorageInput{})
	require.NoError(t, err)

	headCtx, _ := f.user(t, id.RoleSectionHead)
	request, err = f.service.Transition(headCtx, request.ID, id.TransitionReject,
		TransitionInput{ExpectedVersion: request.Version, Reason: "duplicate of an open request", Proof: proof()})
	require.NoError(t, err)
	assert.Equal(t, id.StatusRejected, request.Status)

	sendBacks, err := f.service.ListSendBacks(userCtx, request.ID)
	require.NoError(t, err)
	require.Len(t, sendBacks, 1)
	assert.Equal(t, "duplicate of an open request", sendBacks[0].Reason)

	_, err = f.service.Transition(userCtx, request.ID, id.TransitionSubmit,
		TransitionInput{ExpectedVersion: request.Version})
	require.Error(t, err, "rejected requests accept no further transitions")
}

func TestConfirmDestructionDestroysCrate(t *testing.T) {
	f := newFixture(t)
	crate := f.archivedCrate(t)

	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateDestruction(userCtx, CreateDestructionInput{
		CrateID: crate.ID,
		Purpose: "retention period elapsed",
	})
	require.NoError(t, err)

	headCtx, _ := f.user(t, id.RoleSectionHead)
	request, err = f.service.Transition(headCtx, request.ID, id.TransitionApprove,
		TransitionInput{ExpectedVersion: request.Version, Proof: proof()})
	require.NoError(t, err)

	request, err = f.service.Transition(userCtx, request.ID, id.TransitionConfirmDestruction,
		TransitionInput{ExpectedVersion: request.Version, Proof: proof()})
	require.NoError(t, err)
	assert.Equal(t, id.StatusCompleted, request.Status)

	stored, err := f.crates.Get(context.Background(), crate.ID)
	require.NoError(t, err)
	assert.Equal(t, id.CrateDestroyed, stored.Status)

	_, err = f.service.CreateWithdrawal(userCtx, CreateWithdrawalInput{
		CrateID:            crate.ID,
		ExpectedReturnDate: time.Now().Add(24 * time.Hour),
	})
	require.Error(t, err, "destroyed crates cannot be withdrawn")
}

func TestIssueAgainstDestroyedCrateConflicts(t *testing.T) {
	f := newFixture(t)
	withdrawal, crate := f.withdrawalAllocated(t)

	// The crate is destroyed through its own request while the withdrawal
	// still waits for pickup.
	userCtx, _ := f.user(t, id.RoleUser)
	destruction, err := f.service.CreateDestruction(userCtx, CreateDestructionInput{
		CrateID: crate.ID,
		Purpose: "retention period elapsed",
	})
	require.NoError(t, err)

	headCtx, _ := f.user(t, id.RoleSectionHead)
	destruction, err = f.service.Transition(headCtx, destruction.ID, id.TransitionApprove,
		TransitionInput{ExpectedVersion: destruction.Version, Proof: proof()})
	require.NoError(t, err)

	_, err = f.service.Transition(userCtx, destruction.ID, id.TransitionConfirmDestruction,
		TransitionInput{ExpectedVersion: destruction.Version, Proof: proof()})
	require.NoError(t, err)

	storeCtx, _ := f.user(t, id.RoleStoreHead)
	_, err = f.service.Transition(storeCtx, withdrawal.ID, id.TransitionIssue,
		TransitionInput{ExpectedVersion: withdrawal.Version})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict),
		"a crate gone from under a pending withdrawal is a conflict, not a server fault")

	stored, err := f.requests.Get(context.Background(), withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, id.StatusAllocated, stored.Status, "the failed issue leaves the request untouched")
}

func TestAllocateStorageSetsLocationAndArchives(t *testing.T) {
	f := newFixture(t)
	request := f.storageApproved(t)

	storeCtx, _ := f.user(t, id.RoleStoreHead)
	_, err := f.service.Transition(storeCtx, request.ID, id.TransitionAllocateStorage,
		TransitionInput{ExpectedVersion: request.Version})
	require.Error(t, err, "location is required")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	request, err = f.service.Transition(storeCtx, request.ID, id.TransitionAllocateStorage,
		TransitionInput{ExpectedVersion: request.Version, StorageLocation: "row 12, shelf C"})
	require.NoError(t, err)
	assert.Equal(t, id.StatusAllocated, request.Status)

	crate, err := f.crates.Get(context.Background(), *request.CrateID)
	require.NoError(t, err)
	assert.Equal(t, id.CrateArchived, crate.Status)
	require.NotNil(t, crate.StorageLocation)
	assert.Equal(t, "row 12, shelf C", *crate.StorageLocation)
}

func TestCrossUnitAccessIsDenied(t *testing.T) {
	f := newFixture(t)
	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateStorage(userCtx, CreateStorageInput{})
	require.NoError(t, err)

	outsiderCtx, _ := f.userInUnit(t, id.RoleSectionHead, f.otherUnitID)
	_, err = f.service.Transition(outsiderCtx, request.ID, id.TransitionApprove,
		TransitionInput{ExpectedVersion: request.Version, Proof: proof()})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeScope))

	_, err = f.service.GetRequest(outsiderCtx, request.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeScope))
}

func TestSystemAdminReadsAcrossUnitsButNeverMutates(t *testing.T) {
	f := newFixture(t)
	userCtx, _ := f.user(t, id.RoleUser)
	request, err := f.service.CreateStorage(userCtx, CreateStorageInput{})
	require.NoError(t, err)

	adminCtx, _ := f.userInUnit(t, id.RoleSystemAdmin, f.otherUnitID)
	got, err := f.service.GetRequest(adminCtx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, request.ID, got.ID)

	_, err = f.service.Transition(adminCtx, request.ID, id.TransitionApprove,
		TransitionInput{ExpectedVersion: request.Version, Proof: proof()})
	require.Error(t, err)
}

func TestTransitionOnMissingRequest(t *testing.T) {
	f := newFixture(t)
	ctx, _ := f.user(t, id.RoleSectionHead)
	_, err := f.service.Transition(ctx, id.NewRequestID(), id.TransitionApprove,
		TransitionInput{ExpectedVersion: 1, Proof: proof()})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCentralCrateFansOutToBothUnits(t *testing.T) {
	f := newFixture(t)
	ctx, _ := f.user(t, id.RoleUser)

	_, err := f.service.CreateStorage(ctx, CreateStorageInput{ToCentral: true})
	require.NoError(t, err)

	published := f.published.all()
	require.Len(t, published, 1)
	assert.ElementsMatch(t,
		[]events.Scope{events.UnitScope(f.unitID), events.UnitScope(f.centralUnit)},
		published[0].Scopes)
}

func TestListRequestsIsUnitScoped(t *testing.T) {
	f := newFixture(t)
	userCtx, _ := f.user(t, id.RoleUser)
	_, err := f.service.CreateStorage(userCtx, CreateStorageInput{})
	require.NoError(t, err)

	outsiderCtx, _ := f.userInUnit(t, id.RoleUser, f.otherUnitID)
	listed, err := f.service.ListRequests(outsiderCtx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	adminCtx, _ := f.userInUnit(t, id.RoleSystemAdmin, f.otherUnitID)
	listed, err = f.service.ListRequests(adminCtx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestAuditTrailIsOrderedAndComplete(t *testing.T) {
	f := newFixture(t)
	request, _ := f.withdrawalIssued(t)

	userCtx, _ := f.user(t, id.RoleUser)
	trail, err := f.service.AuditTrail(userCtx, request.ID)
	require.NoError(t, err)
	require.Len(t, trail, 4)
	assert.Equal(t, "create", trail[0].Action)
	assert.Equal(t, "approve", trail[1].Action)
	assert.Equal(t, "allocate_storage", trail[2].Action)
	assert.Equal(t, "issue", trail[3].Action)
}
