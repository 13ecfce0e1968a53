package testtransport

import (
	"context"

	"github.com/go-kit/log"
	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Factory", func() {
	var (
		mockCtrl       *gomock.Controller
		mockBus        *MockBus
		mockDispatcher *MockEventDispatcher
		mockClock      *MockClock
		mockSerializer *MockSerializer
		subject        *Factory
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mockBus = NewMockBus(mockCtrl)
		mockDispatcher = NewMockEventDispatcher(mockCtrl)
		mockClock = NewMockClock(mockCtrl)
		mockSerializer = NewMockSerializer(mockCtrl)

		subject = NewFactory(mockBus, mockDispatcher, mockClock)
	})

	AfterEach(func() {
		subject.Registry().ResetAll()
		mockCtrl.Finish()
	})

	Describe("#CreateTransport", func() {
		defaults := map[string]bool{
			"intercept":           true,
			"catch_exceptions":    true,
			"test_serialization":  true,
			"disable_retries":     true,
			"support_delay_stamp": false,
		}

		with := func(overrides map[string]bool) map[string]bool {
			res := map[string]bool{}
			for k, v := range defaults {
				res[k] = v
			}
			for k, v := range overrides {
				res[k] = v
			}
			return res
		}

		table.DescribeTable("should resolve the transport flags",
			func(dsn string, options map[string]any, expected map[string]bool) {
				options[OptionTransportName] = "some-transport-name"

				transport, err := subject.CreateTransport(dsn, options, mockSerializer)
				Expect(err).To(Succeed())
				Expect(map[string]bool{
					"intercept":           transport.IsIntercepting(),
					"catch_exceptions":    transport.IsCatchingExceptions(),
					"test_serialization":  transport.ShouldTestSerialization(),
					"disable_retries":     transport.IsRetriesDisabled(),
					"support_delay_stamp": transport.SupportsDelayStamp(),
				}).To(Equal(expected))
			},
			table.Entry("pass options by dsn only",
				"test://?intercept=false&support_delay_stamp=true",
				map[string]any{},
				with(map[string]bool{"intercept": false, "support_delay_stamp": true}),
			),
			table.Entry("pass options by options only",
				"test://",
				map[string]any{"intercept": false, "support_delay_stamp": true},
				with(map[string]bool{"intercept": false, "support_delay_stamp": true}),
			),
			table.Entry("pass options by dsn and options",
				"test://?catch_exceptions=false&support_delay_stamp=false",
				map[string]any{"catch_exceptions": true, "support_delay_stamp": true},
				with(map[string]bool{"catch_exceptions": true, "support_delay_stamp": true}),
			),
		)

		It("should register the transport under its name", func() {
			transport, err := subject.CreateTransport("test://", map[string]any{OptionTransportName: "async"}, nil)
			Expect(err).To(Succeed())
			Expect(transport.Name()).To(Equal("async"))

			registered, err := subject.Registry().Get("async")
			Expect(err).To(Succeed())
			Expect(registered).To(BeIdenticalTo(transport))
		})

		It("should default the transport name", func() {
			transport, err := subject.CreateTransport("test://", map[string]any{}, nil)
			Expect(err).To(Succeed())
			Expect(transport.Name()).To(Equal(DefaultTransportName))
		})

		It("should return the existing transport for the same name and options", func() {
			first, err := subject.CreateTransport("test://?intercept=false", map[string]any{OptionTransportName: "async"}, nil)
			Expect(err).To(Succeed())

			second, err := subject.CreateTransport("test://", map[string]any{OptionTransportName: "async", "intercept": false}, nil)
			Expect(err).To(Succeed())
			Expect(second).To(BeIdenticalTo(first))
		})

		It("should keep the serializer of the existing transport", func() {
			first, err := subject.CreateTransport("test://", map[string]any{OptionTransportName: "async"}, mockSerializer)
			Expect(err).To(Succeed())

			second, err := subject.CreateTransport("test://", map[string]any{OptionTransportName: "async"}, nil)
			Expect(err).To(Succeed())
			Expect(second).To(BeIdenticalTo(first))
			Expect(second.serializer).To(BeIdenticalTo(mockSerializer))
		})

		It("should acknowledge envelopes when no bus is given", func() {
			factory := NewFactory(nil, nil, nil, WithLogger(log.NewNopLogger()))
			defer factory.Registry().ResetAll()

			transport, err := factory.CreateTransport("test://?intercept=false", map[string]any{}, nil)
			Expect(err).To(Succeed())

			_, err = transport.Send(context.Background(), NewEnvelope(placeOrder{OrderID: "1"}))
			Expect(err).To(Succeed())
			Expect(transport.Acknowledged()).To(HaveLen(1))
			Expect(transport.Rejected()).To(BeEmpty())
		})

		It("should refuse a second transport with different options", func() {
			_, err := subject.CreateTransport("test://", map[string]any{OptionTransportName: "async"}, nil)
			Expect(err).To(Succeed())

			_, err = subject.CreateTransport("test://?intercept=false", map[string]any{OptionTransportName: "async"}, nil)
			Expect(err).To(MatchError(ErrTransportConflict))
		})

		It("should fail on an invalid transport name", func() {
			_, err := subject.CreateTransport("test://", map[string]any{OptionTransportName: 42}, nil)
			Expect(err).To(MatchError(ErrInvalidOption))
		})

		It("should fail on an unsupported scheme", func() {
			_, err := subject.CreateTransport("amqp://localhost", map[string]any{}, nil)
			Expect(err).To(MatchError(ErrInvalidDSN))
		})

		It("should fail without producing a transport on an invalid flag", func() {
			_, err := subject.CreateTransport("test://?intercept=nope", map[string]any{OptionTransportName: "broken"}, nil)
			Expect(err).To(MatchError(ErrInvalidOption))

			_, err = subject.Registry().Get("broken")
			Expect(err).To(MatchError(ErrTransportNotFound))
		})
	})

	Describe("#Supports", func() {
		table.DescribeTable("should match on the scheme only",
			func(dsn string, expected bool) {
				Expect(subject.Supports(dsn, map[string]any{})).To(Equal(expected))
			},
			table.Entry("test scheme", "test://", true),
			table.Entry("test scheme with parameters", "test://?intercept=false", true),
			table.Entry("another scheme", "another-test://", false),
			table.Entry("no scheme", "test", false),
		)
	})
})
