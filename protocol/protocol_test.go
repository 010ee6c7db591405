package protocol

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimple(t *testing.T) {
	cmd := Parse("send @alice hello world")
	require.NotNil(t, cmd)
	assert.Equal(t, "send", cmd.Name)
	assert.Equal(t, []string{"@alice", "hello", "world"}, cmd.Args)
}

func TestParseEmptyLine(t *testing.T) {
	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("   \t  "))
}

func TestParseNoArgs(t *testing.T) {
	cmd := Parse("viewDirectMessages")
	require.NotNil(t, cmd)
	assert.Equal(t, "viewDirectMessages", cmd.Name)
	assert.Empty(t, cmd.Args)
}

func TestParseQuotedSpansTokens(t *testing.T) {
	cmd := Parse(`send @alice "hello big world"`)
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"@alice", "hello big world"}, cmd.Args)
}

func TestParseQuotedSingleToken(t *testing.T) {
	cmd := Parse(`send @alice "hi"`)
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"@alice", "hi"}, cmd.Args)
}

func TestParseQuotedFollowedByMoreArgs(t *testing.T) {
	cmd := Parse(`updateTask 1 description "fix the bug" status pending`)
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"1", "fix the bug", "status", "pending"}, cmd.Args)
}

func TestParseUnterminatedQuote(t *testing.T) {
	cmd := Parse(`send @alice "oops no closing`)
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"@alice", "oops no closing"}, cmd.Args)
}

func TestJoinRest(t *testing.T) {
	args := []string{"@alice", "hello", "world"}
	assert.Equal(t, "hello world", JoinRest(args, 1))
	assert.Equal(t, "", JoinRest(args, 3))
	assert.Equal(t, "", JoinRest(nil, 0))
}

func TestFormatDirectPush(t *testing.T) {
	assert.Equal(t, `receivedMessage alice "hi there"`, FormatDirectPush("alice", "hi there"))
}

func TestFormatChannelPush(t *testing.T) {
	assert.Equal(t, "MSG #general: hello", FormatChannelPush("general", "hello"))
}

func TestFormatFilePush(t *testing.T) {
	line := FormatFilePush("my file.txt", []byte("hello"))

	name := base64.StdEncoding.EncodeToString([]byte("my file.txt"))
	payload := base64.StdEncoding.EncodeToString([]byte("hello"))
	assert.Equal(t, "incomingFile "+name+" 5 "+payload, line)
}
