package utils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatwire/pkg/eventstream"
	"github.com/papercomputeco/chatwire/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatwire/pkg/eventstream/nop"
	"github.com/papercomputeco/chatwire/pkg/eventstream/utils"
	"github.com/papercomputeco/chatwire/pkg/logger"
)

var _ = Describe("NewPublisher", func() {
	It("disables publishing by default", func() {
		p, err := utils.NewPublisher(utils.PublisherConfig{}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("builds a kafka publisher", func() {
		p, err := utils.NewPublisher(utils.PublisherConfig{
			Provider: utils.ProviderKafka,
			Brokers:  []string{"localhost:9092"},
			Topic:    "chatwire.completions",
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&kafka.Publisher{}))
		Expect(p.Close()).To(Succeed())
	})

	It("propagates kafka config errors", func() {
		_, err := utils.NewPublisher(utils.PublisherConfig{Provider: utils.ProviderKafka}, logger.Nop())
		Expect(err).To(MatchError(kafka.ErrNoBrokers))
	})

	It("rejects unknown providers", func() {
		_, err := utils.NewPublisher(utils.PublisherConfig{Provider: "nats"}, logger.Nop())
		Expect(err).To(MatchError(eventstream.ErrUnknownProvider))
	})
})
