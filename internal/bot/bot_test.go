package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"genie-bot/internal/domain"
	"genie-bot/internal/export"
	"genie-bot/internal/usecase"
)

type mockAsker struct {
	out    usecase.AskOutput
	lastIn usecase.AskInput
	calls  int
}

func (m *mockAsker) Ask(_ context.Context, in usecase.AskInput) usecase.AskOutput {
	m.calls++
	m.lastIn = in
	return m.out
}

type mockTransport struct {
	texts         []string
	offers        []domain.FileOffer
	confirmations []domain.FileConfirmation
	uploads       []uploadCall

	sendErr   error
	uploadErr error
}

type uploadCall struct {
	url  string
	data []byte
}

func (m *mockTransport) SendText(_ context.Context, text string) error {
	m.texts = append(m.texts, text)
	return m.sendErr
}

func (m *mockTransport) SendFileOffer(_ context.Context, offer domain.FileOffer) error {
	m.offers = append(m.offers, offer)
	return m.sendErr
}

func (m *mockTransport) SendFileConfirmation(_ context.Context, confirmation domain.FileConfirmation) error {
	m.confirmations = append(m.confirmations, confirmation)
	return m.sendErr
}

func (m *mockTransport) Upload(_ context.Context, url string, data []byte) error {
	m.uploads = append(m.uploads, uploadCall{url: url, data: data})
	return m.uploadErr
}

func tabularOutput(conversationID string) usecase.AskOutput {
	return usecase.AskOutput{
		Answer: domain.NewTabularAnswer(
			[]domain.ColumnDef{
				{Name: "Region", TypeName: "STRING"},
				{Name: "Sales", TypeName: "INT"},
			},
			[][]any{{"West", "1000"}, {"East", "2000"}},
			"",
		),
		ConversationID: conversationID,
	}
}

func newTestBot(t *testing.T, ask Asker, cache *export.Cache, cfg Config) *Bot {
	t.Helper()
	if cfg.SpaceID == "" {
		cfg.SpaceID = "space-1"
	}
	handshake, err := NewHandshake(cache)
	require.NoError(t, err)
	b, err := NewBot(ask, cache, handshake, cfg)
	require.NoError(t, err)
	return b
}

func TestNewBot_ValidatesDependencies(t *testing.T) {
	cache := export.NewCache(export.EvictOnExpiry)
	handshake, err := NewHandshake(cache)
	require.NoError(t, err)

	_, err = NewBot(nil, cache, handshake, Config{SpaceID: "s"})
	require.Error(t, err)
	_, err = NewBot(&mockAsker{}, nil, handshake, Config{SpaceID: "s"})
	require.Error(t, err)
	_, err = NewBot(&mockAsker{}, cache, nil, Config{SpaceID: "s"})
	require.Error(t, err)
	_, err = NewBot(&mockAsker{}, cache, handshake, Config{})
	require.Error(t, err)
}

func TestHandleMessage_TabularConsentMode(t *testing.T) {
	cache := export.NewCache(export.EvictOnExpiry)
	ask := &mockAsker{out: tabularOutput("conv-1")}
	b := newTestBot(t, ask, cache, Config{})
	tp := &mockTransport{}

	err := b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "show sales by region"}, tp)
	require.NoError(t, err)

	require.Len(t, tp.texts, 1)
	require.Contains(t, tp.texts[0], "| Region | Sales |")
	require.Contains(t, tp.texts[0], "| West | 1,000 |")
	require.NotContains(t, tp.texts[0], "Download as Excel")

	require.Len(t, tp.offers, 1)
	require.NotEmpty(t, tp.offers[0].Token)
	require.Positive(t, tp.offers[0].SizeBytes)
	require.Contains(t, tp.offers[0].Filename, ".xlsx")

	entry, err := cache.Get(tp.offers[0].Token)
	require.NoError(t, err)
	require.Equal(t, int64(len(entry.Artifact)), tp.offers[0].SizeBytes)
}

func TestHandleMessage_TabularLinkMode(t *testing.T) {
	cache := export.NewCache(export.EvictOnRead)
	ask := &mockAsker{out: tabularOutput("conv-1")}
	b := newTestBot(t, ask, cache, Config{DownloadBaseURL: "https://bot.example.com/"})
	tp := &mockTransport{}

	err := b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "show sales by region"}, tp)
	require.NoError(t, err)

	require.Len(t, tp.texts, 1)
	require.Contains(t, tp.texts[0], "https://bot.example.com/download/")
	require.Empty(t, tp.offers)
	require.Equal(t, 1, cache.Len())
}

func TestHandleMessage_TextOnly_NoCacheEntry(t *testing.T) {
	cache := export.NewCache(export.EvictOnExpiry)
	ask := &mockAsker{out: usecase.AskOutput{
		Answer:         domain.NewTextAnswer("42 orders found"),
		ConversationID: "conv-1",
	}}
	b := newTestBot(t, ask, cache, Config{})
	tp := &mockTransport{}

	err := b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "how many orders?"}, tp)
	require.NoError(t, err)

	require.Equal(t, []string{"42 orders found\n\n"}, tp.texts)
	require.Empty(t, tp.offers)
	require.Zero(t, cache.Len())
}

func TestHandleMessage_TracksConversationPerUser(t *testing.T) {
	cache := export.NewCache(export.EvictOnExpiry)
	ask := &mockAsker{out: usecase.AskOutput{
		Answer:         domain.NewTextAnswer("hi"),
		ConversationID: "conv-1",
	}}
	b := newTestBot(t, ask, cache, Config{})
	tp := &mockTransport{}

	require.NoError(t, b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "first"}, tp))
	require.Empty(t, ask.lastIn.ConversationID)

	ask.out.ConversationID = "conv-2"
	require.NoError(t, b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "second"}, tp))
	require.Equal(t, "conv-1", ask.lastIn.ConversationID)

	// A different user starts fresh.
	require.NoError(t, b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-2", Text: "hello"}, tp))
	require.Empty(t, ask.lastIn.ConversationID)
}

func TestHandleMessage_FailedTurnKeepsPriorConversation(t *testing.T) {
	cache := export.NewCache(export.EvictOnExpiry)
	ask := &mockAsker{out: usecase.AskOutput{
		Answer:         domain.NewTextAnswer("hi"),
		ConversationID: "conv-1",
	}}
	b := newTestBot(t, ask, cache, Config{})
	tp := &mockTransport{}

	require.NoError(t, b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "first"}, tp))

	// Failed turns return the error variant and no new conversation id.
	ask.out = usecase.AskOutput{Answer: domain.NewErrorAnswer("request processing failed")}
	require.NoError(t, b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "second"}, tp))

	ask.out = usecase.AskOutput{Answer: domain.NewTextAnswer("ok"), ConversationID: "conv-2"}
	require.NoError(t, b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "third"}, tp))
	require.Equal(t, "conv-1", ask.lastIn.ConversationID)
}

func TestHandleMessage_EmptyTextIsIgnored(t *testing.T) {
	cache := export.NewCache(export.EvictOnExpiry)
	ask := &mockAsker{}
	b := newTestBot(t, ask, cache, Config{})
	tp := &mockTransport{}

	require.NoError(t, b.HandleMessage(context.Background(), domain.MessageEvent{UserID: "user-1", Text: "  "}, tp))
	require.Zero(t, ask.calls)
	require.Empty(t, tp.texts)
}

func TestHandleMembersAdded_WelcomesEveryoneButTheBot(t *testing.T) {
	cache := export.NewCache(export.EvictOnExpiry)
	b := newTestBot(t, &mockAsker{}, cache, Config{})
	tp := &mockTransport{}

	err := b.HandleMembersAdded(context.Background(), domain.MembersAddedEvent{
		MemberIDs:   []string{"user-1", "bot-1", "user-2"},
		RecipientID: "bot-1",
	}, tp)
	require.NoError(t, err)
	require.Len(t, tp.texts, 2)
	require.Equal(t, "Welcome to the Databricks Genie Bot!", tp.texts[0])
}
