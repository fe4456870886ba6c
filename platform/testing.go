package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is an in-memory Client for tests. Listings page through the
// configured slices (assumed newest-first, as the real API returns them) and
// every mutating call is recorded so tests can assert on side effects.
type MockClient struct {
	mu sync.Mutex

	Posts    []Post
	Comments []Comment
	Reports  []Report
	Votes    map[int64][]Vote
	Admins   []Person
	Persons  map[string]Person
	PMs      []PrivateMessage

	// Err, when set, fails every call. ErrOps fails only the named ops
	// ("remove_post", "ban", ...) for fault-injection tests.
	Err    error
	ErrOps map[string]error

	RemovedPosts       map[int64]bool
	RemovedComments    map[int64]bool
	PostRemovalCalls   int
	CommentRemovalCall int
	LockedPosts        map[int64]bool
	BanCalls           []BanCall
	PostReportCalls    []ReportCall
	CommentReportCalls []ReportCall
	CreatedComments    []CreatedComment
	EditedComments     map[int64]string
	Distinguished      map[int64]bool
	SentPMs            []SentPM
	ReadPMs            map[int64]bool

	nextCommentID int64
}

type BanCall struct {
	PersonID   int64
	Ban        bool
	Expires    *time.Time
	RemoveData bool
	Reason     string
}

type ReportCall struct {
	TargetID int64
	Reason   string
}

type CreatedComment struct {
	ID       int64
	PostID   int64
	ParentID *int64
	Content  string
}

type SentPM struct {
	RecipientID int64
	Content     string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Votes:           make(map[int64][]Vote),
		Persons:         make(map[string]Person),
		ErrOps:          make(map[string]error),
		RemovedPosts:    make(map[int64]bool),
		RemovedComments: make(map[int64]bool),
		LockedPosts:     make(map[int64]bool),
		EditedComments:  make(map[int64]string),
		Distinguished:   make(map[int64]bool),
		ReadPMs:         make(map[int64]bool),
		nextCommentID:   9000,
	}
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) fail(op string) error {
	if m.Err != nil {
		return m.Err
	}
	if err, ok := m.ErrOps[op]; ok {
		return err
	}
	return nil
}

func page[T any](items []T, pageNum, limit int) []T {
	if pageNum < 1 {
		pageNum = 1
	}
	start := (pageNum - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

func (m *MockClient) ListReports(ctx context.Context, pageNum, limit int) ([]Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list_reports"); err != nil {
		return nil, err
	}
	return page(m.Reports, pageNum, limit), nil
}

func (m *MockClient) ListPosts(ctx context.Context, communityID int64, pageNum, limit int) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list_posts"); err != nil {
		return nil, err
	}
	if communityID == 0 {
		return page(m.Posts, pageNum, limit), nil
	}
	var filtered []Post
	for _, p := range m.Posts {
		if p.Community.ID == communityID {
			filtered = append(filtered, p)
		}
	}
	return page(filtered, pageNum, limit), nil
}

func (m *MockClient) ListComments(ctx context.Context, pageNum, limit int) ([]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list_comments"); err != nil {
		return nil, err
	}
	return page(m.Comments, pageNum, limit), nil
}

func (m *MockClient) GetPost(ctx context.Context, postID int64) (*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get_post"); err != nil {
		return nil, err
	}
	for i := range m.Posts {
		if m.Posts[i].ID == postID {
			p := m.Posts[i]
			p.Removed = m.RemovedPosts[postID]
			p.Locked = m.LockedPosts[postID]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("post %d not found", postID)
}

func (m *MockClient) RemovePost(ctx context.Context, postID int64, removed bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("remove_post"); err != nil {
		return err
	}
	m.RemovedPosts[postID] = removed
	m.PostRemovalCalls++
	return nil
}

func (m *MockClient) RemoveComment(ctx context.Context, commentID int64, removed bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("remove_comment"); err != nil {
		return err
	}
	m.RemovedComments[commentID] = removed
	m.CommentRemovalCall++
	return nil
}

func (m *MockClient) LockPost(ctx context.Context, postID int64, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("lock_post"); err != nil {
		return err
	}
	m.LockedPosts[postID] = locked
	return nil
}

func (m *MockClient) BanUser(ctx context.Context, personID int64, ban bool, expires *time.Time, removeData bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ban"); err != nil {
		return err
	}
	m.BanCalls = append(m.BanCalls, BanCall{
		PersonID:   personID,
		Ban:        ban,
		Expires:    expires,
		RemoveData: removeData,
		Reason:     reason,
	})
	return nil
}

func (m *MockClient) ReportPost(ctx context.Context, postID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("report_post"); err != nil {
		return err
	}
	m.PostReportCalls = append(m.PostReportCalls, ReportCall{TargetID: postID, Reason: reason})
	return nil
}

func (m *MockClient) ReportComment(ctx context.Context, commentID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("report_comment"); err != nil {
		return err
	}
	m.CommentReportCalls = append(m.CommentReportCalls, ReportCall{TargetID: commentID, Reason: reason})
	return nil
}

func (m *MockClient) CreateComment(ctx context.Context, postID int64, parentID *int64, content string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create_comment"); err != nil {
		return 0, err
	}
	m.nextCommentID++
	m.CreatedComments = append(m.CreatedComments, CreatedComment{
		ID:       m.nextCommentID,
		PostID:   postID,
		ParentID: parentID,
		Content:  content,
	})
	return m.nextCommentID, nil
}

func (m *MockClient) EditComment(ctx context.Context, commentID int64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("edit_comment"); err != nil {
		return err
	}
	m.EditedComments[commentID] = content
	return nil
}

func (m *MockClient) DistinguishComment(ctx context.Context, commentID int64, distinguished bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("distinguish"); err != nil {
		return err
	}
	m.Distinguished[commentID] = distinguished
	return nil
}

func (m *MockClient) ListVotes(ctx context.Context, postID int64, pageNum, limit int) ([]Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list_votes"); err != nil {
		return nil, err
	}
	return page(m.Votes[postID], pageNum, limit), nil
}

func (m *MockClient) SiteAdmins(ctx context.Context) ([]Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("site_admins"); err != nil {
		return nil, err
	}
	out := make([]Person, len(m.Admins))
	copy(out, m.Admins)
	return out, nil
}

func (m *MockClient) GetPersonByName(ctx context.Context, name string) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get_person"); err != nil {
		return nil, err
	}
	p, ok := m.Persons[name]
	if !ok {
		return nil, fmt.Errorf("person %q not found", name)
	}
	return &p, nil
}

func (m *MockClient) SendPrivateMessage(ctx context.Context, recipientID int64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("send_pm"); err != nil {
		return err
	}
	m.SentPMs = append(m.SentPMs, SentPM{RecipientID: recipientID, Content: content})
	return nil
}

func (m *MockClient) ListPrivateMessages(ctx context.Context, unreadOnly bool, pageNum, limit int) ([]PrivateMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list_pms"); err != nil {
		return nil, err
	}
	var pms []PrivateMessage
	for _, pm := range m.PMs {
		if unreadOnly && (pm.Read || m.ReadPMs[pm.ID]) {
			continue
		}
		pms = append(pms, pm)
	}
	return page(pms, pageNum, limit), nil
}

func (m *MockClient) MarkPrivateMessageRead(ctx context.Context, pmID int64, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("mark_pm_read"); err != nil {
		return err
	}
	m.ReadPMs[pmID] = read
	return nil
}
