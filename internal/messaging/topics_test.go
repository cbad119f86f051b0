package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicSubtopics(t *testing.T) {
	testCases := []struct {
		topic    Topic
		request  string
		response string
	}{
		{topic: "foo", request: "foo/request", response: "foo/response"},
		{topic: SampleSaveTopic("abc"), request: "samples/abc/save/request", response: "samples/abc/save/response"},
		{topic: LinkedUserTopic("dev-1"), request: "users/dev-1/linked/request", response: "users/dev-1/linked/response"},
		{topic: RegisterDeviceTopic("dev-1"), request: "devices/dev-1/register/request", response: "devices/dev-1/register/response"},
	}

	for _, tc := range testCases {
		t.Run(tc.topic.String(), func(t *testing.T) {
			assert.Equal(t, tc.request, tc.topic.Request())
			assert.Equal(t, tc.response, tc.topic.Response())

			base, ok := ParseRequestTopic(tc.topic.Request())
			assert.True(t, ok)
			assert.Equal(t, tc.topic, base)
		})
	}
}

func TestParseRequestTopicRejects(t *testing.T) {
	for _, topic := range []string{"foo/response", "foo", "/request", "", "samples/abc/validate"} {
		_, ok := ParseRequestTopic(topic)
		assert.False(t, ok, topic)
	}
}

func TestValidateTopic(t *testing.T) {
	assert.Equal(t, Topic("samples/abc/validate"), SampleValidateTopic("abc"))
}
