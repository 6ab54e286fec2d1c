package llm_test

import (
	"encoding/json"
	"strings"

	"groundedtheory.dev/core/common/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SanitizeName", func() {
	DescribeTable("sanitizes usernames for OpenAI name parameter",
		func(input, expected string) {
			Expect(llm.SanitizeName(input)).To(Equal(expected))
		},
		Entry("valid name unchanged", "alice", "alice"),
		Entry("dots replaced with underscore", "alice.smith", "alice_smith"),
		Entry("@ replaced with underscore", "alice@dev", "alice_dev"),
		Entry("hyphens preserved", "alice-dev", "alice-dev"),
		Entry("underscores preserved", "alice_dev", "alice_dev"),
		Entry("numbers preserved", "alice123", "alice123"),
		Entry("mixed case preserved", "AliceSmith", "AliceSmith"),
		Entry("multiple special chars replaced", "alice.smith@dev!", "alice_smith_dev_"),
		Entry("spaces replaced", "alice smith", "alice_smith"),
		Entry("long name truncated to 64 chars", strings.Repeat("a", 100), strings.Repeat("a", 64)),
		Entry("exactly 64 chars unchanged", strings.Repeat("b", 64), strings.Repeat("b", 64)),
		Entry("empty string unchanged", "", ""),
	)
})

var _ = Describe("GenerateSchemaFrom", func() {
	type extractedCode struct {
		Label      string  `json:"label"`
		Definition string  `json:"definition"`
		Confidence float64 `json:"confidence"`
	}

	It("reflects a struct into an inline schema", func() {
		schema := llm.GenerateSchemaFrom(extractedCode{})
		Expect(schema).NotTo(BeNil())

		data, err := json.Marshal(schema)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"label"`))
		Expect(string(data)).To(ContainSubstring(`"confidence"`))
		Expect(string(data)).To(ContainSubstring(`"additionalProperties":false`))
	})
})

var _ = Describe("Message", func() {
	Describe("Name field", func() {
		It("accepts a name for user messages", func() {
			msg := llm.Message{
				Role:    "user",
				Name:    "alice",
				Content: "Hello world",
			}
			Expect(msg.Role).To(Equal("user"))
			Expect(msg.Name).To(Equal("alice"))
			Expect(msg.Content).To(Equal("Hello world"))
		})

		It("allows empty name (optional field)", func() {
			msg := llm.Message{
				Role:    "user",
				Content: "Hello world",
			}
			Expect(msg.Name).To(BeEmpty())
		})

		It("can be used with sanitized researcher usernames", func() {
			researcherUsername := "alice.smith@org"
			msg := llm.Message{
				Role:    "user",
				Name:    llm.SanitizeName(researcherUsername),
				Content: "classify this fragment",
			}
			Expect(msg.Name).To(Equal("alice_smith_org"))
		})
	})
})
