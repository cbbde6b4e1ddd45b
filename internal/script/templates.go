package script

import (
	"hash/fnv"
	"strings"

	"github.com/MrWong99/awkwardescape/pkg/types"
)

// DefaultTheme is substituted for {theme} when a persona has none.
const DefaultTheme = "something urgent"

// templateTurn is one line of an offline call template. Text may contain the
// placeholders {name}, {theme} and {role}.
type templateTurn struct {
	speaker types.Speaker
	text    string
}

// Every call template has exactly four turns and opens with a Caller line that
// mentions both {name} and {theme}.
var generalCallTemplates = [][]templateTurn{
	{
		{types.SpeakerCaller, "Hey, it's {name} ({role}). I need you on {theme} right now."},
		{types.SpeakerYou, "I can step out for a moment."},
		{types.SpeakerCaller, "Please call me back immediately."},
		{types.SpeakerYou, "Understood. I am stepping out."},
	},
	{
		{types.SpeakerCaller, "{name} here. Quick update needed on {theme}. Can you take this now?"},
		{types.SpeakerYou, "I have to step away for a call."},
		{types.SpeakerCaller, "It is urgent. Please do not delay."},
		{types.SpeakerYou, "I will handle it right away."},
	},
	{
		{types.SpeakerCaller, "Hi, {name} here. There is an issue about {theme}."},
		{types.SpeakerYou, "I can step out and take this."},
		{types.SpeakerCaller, "Thank you, it is time sensitive."},
		{types.SpeakerYou, "I will call you now."},
	},
	{
		{types.SpeakerCaller, "{name} calling. I need your input on {theme} right now."},
		{types.SpeakerYou, "I will step outside to talk."},
		{types.SpeakerCaller, "Please make it quick."},
		{types.SpeakerYou, "On my way."},
	},
	{
		{types.SpeakerCaller, "{name} here. We have a situation with {theme}."},
		{types.SpeakerYou, "I can step away and take the call."},
		{types.SpeakerCaller, "Thanks. Call me as soon as possible."},
		{types.SpeakerYou, "I am stepping out now."},
	},
}

// relationshipCallTemplates are tried ahead of the general ones for the
// matching relationship.
var relationshipCallTemplates = map[types.RelationshipType][][]templateTurn{
	types.RelationshipBoss: {
		{
			{types.SpeakerCaller, "It's {name}. I need you on the {theme} right now, the client is waiting."},
			{types.SpeakerYou, "Okay, give me one second to step out."},
			{types.SpeakerCaller, "They want an answer in ten minutes."},
			{types.SpeakerYou, "Understood, I'm on it now."},
		},
		{
			{types.SpeakerCaller, "{name} here. Leadership is asking about the {theme}. Are you free?"},
			{types.SpeakerYou, "I can be, let me find a quiet spot."},
			{types.SpeakerCaller, "Good. Dial into the call as soon as you can."},
			{types.SpeakerYou, "Joining in two minutes."},
		},
	},
	types.RelationshipParent: {
		{
			{types.SpeakerCaller, "Honey, it's {name}. I'm calling about the {theme}."},
			{types.SpeakerYou, "Is everything okay?"},
			{types.SpeakerCaller, "Mostly, but I need you to come and help."},
			{types.SpeakerYou, "Okay, I'm leaving now."},
		},
		{
			{types.SpeakerCaller, "{name} here. Sorry to bother you, it's the {theme} again."},
			{types.SpeakerYou, "No problem, tell me what happened."},
			{types.SpeakerCaller, "I'd rather explain in person. Can you come?"},
			{types.SpeakerYou, "Yes, I'll be there soon."},
		},
	},
	types.RelationshipFriend: {
		{
			{types.SpeakerCaller, "Dude, it's {name}. Total disaster with the {theme}."},
			{types.SpeakerYou, "Oh no, okay. What do you need?"},
			{types.SpeakerCaller, "Just get here, please. I can't deal with this alone."},
			{types.SpeakerYou, "Hang tight, I'm coming."},
		},
		{
			{types.SpeakerCaller, "Hey, it's {name}. I really need you, it's about the {theme}."},
			{types.SpeakerYou, "Of course. Where are you?"},
			{types.SpeakerCaller, "Same place as always. Please hurry."},
			{types.SpeakerYou, "On my way right now."},
		},
	},
	types.RelationshipLandlord: {
		{
			{types.SpeakerCaller, "Hello, this is {name}, {role}. I'm calling about the {theme}."},
			{types.SpeakerYou, "Oh no. How bad is it?"},
			{types.SpeakerCaller, "Bad enough that I need you here to let the plumber in."},
			{types.SpeakerYou, "I'll head over immediately."},
		},
		{
			{types.SpeakerCaller, "{name} calling about the {theme}. The contractor is here now."},
			{types.SpeakerYou, "Right now? Okay, give me a minute."},
			{types.SpeakerCaller, "He can't wait long, so please hurry."},
			{types.SpeakerYou, "I'm leaving now."},
		},
	},
	types.RelationshipPartner: {
		{
			{types.SpeakerCaller, "Babe, it's {name}. Something came up with the {theme}."},
			{types.SpeakerYou, "What happened? Are you alright?"},
			{types.SpeakerCaller, "I'm fine, but I need you home. Can you come?"},
			{types.SpeakerYou, "Yes, I'll be right there."},
		},
	},
	types.RelationshipSibling: {
		{
			{types.SpeakerCaller, "It's {name}. Don't freak out, but we need to talk about the {theme}."},
			{types.SpeakerYou, "Okay, I'm listening."},
			{types.SpeakerCaller, "Mom wants us both there. Can you leave now?"},
			{types.SpeakerYou, "Yeah, I'll meet you there."},
		},
	},
}

var messageTemplates = []string{
	"Hey, it is {name}. Need you for {theme} right now. Please step out and call me.",
	"Urgent: {name} here. Can you call me about {theme}? It cannot wait.",
	"Please step out and call me. This is {name} about {theme}.",
	"Hey, quick check-in on {theme}. It is {name} - I need you now.",
	"It is urgent about {theme}. Please call me right away. - {name}",
}

// callTemplates returns the templates eligible for rel, relationship-specific
// ones first.
func callTemplates(rel types.RelationshipType) [][]templateTurn {
	specific := relationshipCallTemplates[rel]
	all := make([][]templateTurn, 0, len(specific)+len(generalCallTemplates))
	all = append(all, specific...)
	return append(all, generalCallTemplates...)
}

// SeedIndex maps seed onto [0, n) using the absolute value of its 32-bit
// FNV-1a hash interpreted as a signed integer. n must be positive.
func SeedIndex(seed string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	v := int64(int32(h.Sum32()))
	if v < 0 {
		v = -v
	}
	return int(v % int64(n))
}

// Theme returns the persona's trimmed theme or [DefaultTheme].
func Theme(p types.Persona) string {
	if t := strings.TrimSpace(p.DefaultTheme); t != "" {
		return t
	}
	return DefaultTheme
}

func fill(text string, p types.Persona) string {
	return strings.NewReplacer(
		"{name}", p.DisplayName,
		"{theme}", Theme(p),
		"{role}", p.RelationshipType.Role(),
	).Replace(text)
}

// OfflineCallScript builds a call script from the template library. The same
// persona and seed always yield the same script.
func OfflineCallScript(p types.Persona, seed string) []types.ScriptTurn {
	templates := callTemplates(p.RelationshipType)
	tpl := templates[SeedIndex(seed, len(templates))]
	turns := make([]types.ScriptTurn, len(tpl))
	for i, t := range tpl {
		turns[i] = types.ScriptTurn{Speaker: t.speaker, Text: fill(t.text, p)}
	}
	return turns
}

// OfflineMessage builds a fake text message from the template library.
func OfflineMessage(p types.Persona, seed string) string {
	return fill(messageTemplates[SeedIndex(seed, len(messageTemplates))], p)
}
