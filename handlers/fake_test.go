package handlers

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"ticket-bot/config"
	"ticket-bot/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	testGuildID   = "900"
	testBotID     = "999"
	testSupportCh = "500"
)

type recordedResponse struct {
	interactionID string
	resp          *discordgo.InteractionResponse
}

type recordedFollowup struct {
	interactionID string
	params        *discordgo.WebhookParams
}

// fakePlatform is an in-memory guild. Channel, role and member lists are
// plain slices/maps; every outbound call is recorded.
type fakePlatform struct {
	mu     sync.Mutex
	nextID int

	roles    []*discordgo.Role
	channels []*discordgo.Channel
	members  map[string]*discordgo.Member
	messages map[string][]*discordgo.Message // newest first

	responses []recordedResponse
	followups []recordedFollowup
	cleared   []string
	moves     []string

	createdChannels   int
	createdCategories int

	// createHook runs inside CreateChannel without the lock held.
	createHook func()
	// fail makes the named method return the error.
	fail map[string]error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		nextID:   1000,
		roles:    []*discordgo.Role{{ID: testGuildID, Name: "@everyone", Position: 0}},
		members:  make(map[string]*discordgo.Member),
		messages: make(map[string][]*discordgo.Message),
		fail:     make(map[string]error),
	}
}

func (f *fakePlatform) id() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *fakePlatform) err(method string) error {
	return f.fail[method]
}

func (f *fakePlatform) addRole(name string, position int) *discordgo.Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &discordgo.Role{ID: f.id(), Name: name, Position: position}
	f.roles = append(f.roles, r)
	return r
}

func (f *fakePlatform) addChannel(name, parentID string, typ discordgo.ChannelType) *discordgo.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &discordgo.Channel{ID: f.id(), GuildID: testGuildID, Name: name, ParentID: parentID, Type: typ}
	f.channels = append(f.channels, ch)
	return ch
}

func (f *fakePlatform) addMember(userID string, roleIDs ...string) *discordgo.Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &discordgo.Member{GuildID: testGuildID, User: &discordgo.User{ID: userID, Username: "user" + userID}, Roles: roleIDs}
	f.members[userID] = m
	return m
}

func (f *fakePlatform) channelByID(id string) *discordgo.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.ID == id {
			c := *ch
			return &c
		}
	}
	return nil
}

func (f *fakePlatform) channelsNamed(name string) []*discordgo.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.Channel
	for _, ch := range f.channels {
		if ch.Name == name {
			c := *ch
			out = append(out, &c)
		}
	}
	return out
}

func (f *fakePlatform) responsesFor(interactionID string) []*discordgo.InteractionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.InteractionResponse
	for _, r := range f.responses {
		if r.interactionID == interactionID {
			out = append(out, r.resp)
		}
	}
	return out
}

func (f *fakePlatform) followupsFor(interactionID string) []*discordgo.WebhookParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.WebhookParams
	for _, r := range f.followups {
		if r.interactionID == interactionID {
			out = append(out, r.params)
		}
	}
	return out
}

func (f *fakePlatform) history(channelID string) []*discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Message(nil), f.messages[channelID]...)
}

func (f *fakePlatform) postMessage(channelID string, m *discordgo.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = f.id()
	m.ChannelID = channelID
	f.messages[channelID] = append([]*discordgo.Message{m}, f.messages[channelID]...)
}

func (f *fakePlatform) GuildRoles(string) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("GuildRoles"); err != nil {
		return nil, err
	}
	return append([]*discordgo.Role(nil), f.roles...), nil
}

func (f *fakePlatform) GuildChannels(string) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("GuildChannels"); err != nil {
		return nil, err
	}
	out := make([]*discordgo.Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		c := *ch
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakePlatform) GuildMember(_, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return m, nil
}

func (f *fakePlatform) Channel(channelID string) (*discordgo.Channel, error) {
	if ch := f.channelByID(channelID); ch != nil {
		return ch, nil
	}
	return nil, errors.New("unknown channel")
}

func (f *fakePlatform) CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	if f.createHook != nil {
		f.createHook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("CreateChannel"); err != nil {
		return nil, err
	}
	f.createdChannels++
	ch := &discordgo.Channel{
		ID:                   f.id(),
		GuildID:              guildID,
		Name:                 data.Name,
		Type:                 data.Type,
		Topic:                data.Topic,
		ParentID:             data.ParentID,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	f.channels = append(f.channels, ch)
	c := *ch
	return &c, nil
}

func (f *fakePlatform) CreateCategory(guildID, name string) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("CreateCategory"); err != nil {
		return nil, err
	}
	f.createdCategories++
	ch := &discordgo.Channel{ID: f.id(), GuildID: guildID, Name: name, Type: discordgo.ChannelTypeGuildCategory}
	f.channels = append(f.channels, ch)
	c := *ch
	return &c, nil
}

func (f *fakePlatform) ClearPermission(channelID, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("ClearPermission"); err != nil {
		return err
	}
	for _, ch := range f.channels {
		if ch.ID != channelID {
			continue
		}
		kept := ch.PermissionOverwrites[:0:0]
		for _, o := range ch.PermissionOverwrites {
			if o.ID != targetID {
				kept = append(kept, o)
			}
		}
		ch.PermissionOverwrites = kept
	}
	f.cleared = append(f.cleared, channelID+":"+targetID)
	return nil
}

func (f *fakePlatform) MoveChannel(channelID, parentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("MoveChannel"); err != nil {
		return err
	}
	for _, ch := range f.channels {
		if ch.ID == channelID {
			ch.ParentID = parentID
			f.moves = append(f.moves, channelID+"->"+parentID)
			return nil
		}
	}
	return errors.New("unknown channel")
}

func (f *fakePlatform) SendMessage(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	if err := f.err("SendMessage"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	m := &discordgo.Message{Content: msg.Content, Embeds: msg.Embeds, Components: msg.Components}
	f.postMessage(channelID, m)
	return m, nil
}

func (f *fakePlatform) RecentMessages(channelID string, limit int) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("RecentMessages"); err != nil {
		return nil, err
	}
	msgs := f.messages[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return append([]*discordgo.Message(nil), msgs...), nil
}

func (f *fakePlatform) Message(channelID, messageID string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[channelID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, errors.New("unknown message")
}

func (f *fakePlatform) Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Respond"); err != nil {
		return err
	}
	f.responses = append(f.responses, recordedResponse{interactionID: i.ID, resp: resp})
	return nil
}

func (f *fakePlatform) Followup(i *discordgo.Interaction, params *discordgo.WebhookParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, recordedFollowup{interactionID: i.ID, params: params})
	return nil
}

func (f *fakePlatform) BotUserID() string { return testBotID }

func testConfig() config.TicketsConfig {
	cfg := config.Default().Tickets
	cfg.SupportChannel = testSupportCh
	return cfg
}

func newTestTickets(t *testing.T, cfg config.TicketsConfig, p *fakePlatform) *Tickets {
	t.Helper()
	return New(cfg, p, storage.NewMemoryStore(), zap.NewNop())
}

var interactionSeq struct {
	sync.Mutex
	n int
}

func nextInteractionID() string {
	interactionSeq.Lock()
	defer interactionSeq.Unlock()
	interactionSeq.n++
	return "i" + strconv.Itoa(interactionSeq.n)
}

func interaction(typ discordgo.InteractionType, channelID string, member *discordgo.Member, data discordgo.InteractionData) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        nextInteractionID(),
		Type:      typ,
		GuildID:   testGuildID,
		ChannelID: channelID,
		Member:    member,
		Data:      data,
	}}
}

func buttonClick(channelID, customID, messageID string, member *discordgo.Member) *discordgo.InteractionCreate {
	i := interaction(discordgo.InteractionMessageComponent, channelID, member,
		discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: discordgo.ButtonComponent})
	if messageID != "" {
		i.Message = &discordgo.Message{ID: messageID, ChannelID: channelID}
	}
	return i
}

func modalSubmit(member *discordgo.Member, reason string) *discordgo.InteractionCreate {
	return interaction(discordgo.InteractionModalSubmit, testSupportCh, member, discordgo.ModalSubmitInteractionData{
		CustomID: modalID,
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: reasonInputID, Value: reason},
			}},
		},
	})
}

func slashTicket(member *discordgo.Member, reason *string) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: "ticket"}
	if reason != nil {
		data.Options = []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: *reason},
		}
	}
	return interaction(discordgo.InteractionApplicationCommand, testSupportCh, member, data)
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
