package nav_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fleetnav/navshare/pkg/fleet"
	"github.com/fleetnav/navshare/pkg/nav"
	"github.com/fleetnav/navshare/pkg/store"
)

const vehicleID = "V1"

var (
	wakeURL     = fmt.Sprintf("https://%s/api/1/vehicles/%s/wake_up", fleet.DefaultHost, vehicleID)
	dataURL     = fmt.Sprintf("https://%s/api/1/vehicles/%s/vehicle_data", fleet.DefaultHost, vehicleID)
	navigateURL = fmt.Sprintf("https://%s/api/1/vehicles/%s/command/navigation_request", fleet.DefaultHost, vehicleID)
)

func testRecord() *store.CredentialRecord {
	return &store.CredentialRecord{
		UserID:      "alice",
		AccessToken: "t-access",
		VehicleID:   vehicleID,
	}
}

// onlineAfter reports the vehicle asleep for the first n polls and online
// from then on.
func onlineAfter(n int) httpmock.Responder {
	polls := 0
	return func(*http.Request) (*http.Response, error) {
		polls++
		state := "asleep"
		if polls > n {
			state = "online"
		}
		return httpmock.NewStringResponse(http.StatusOK, fmt.Sprintf(`{"response": {"state": %q}}`, state)), nil
	}
}

var _ = Describe("CommandClient", func() {
	var client *nav.CommandClient

	zeroDelay := nav.RetryPolicy{Attempts: 10, Interval: 0}

	dataCalls := func() int {
		return httpmock.GetCallCountInfo()["GET "+dataURL]
	}

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)

		httpmock.RegisterResponder(http.MethodPost, wakeURL,
			httpmock.NewStringResponder(http.StatusOK, `{"response": {"state": "waking"}}`))
		client = nav.NewCommandClient(testRecord(), "navshare-test", zeroDelay)
	})

	Describe("WakeAndWait", func() {
		It("returns as soon as the vehicle reports online", func() {
			httpmock.RegisterResponder(http.MethodGet, dataURL, onlineAfter(2))

			Expect(client.WakeAndWait(context.Background())).To(Succeed())
			Expect(dataCalls()).To(Equal(3))
		})

		It("sends the wake command before polling", func() {
			httpmock.RegisterResponder(http.MethodGet, dataURL, onlineAfter(0))

			Expect(client.WakeAndWait(context.Background())).To(Succeed())
			Expect(httpmock.GetCallCountInfo()["POST "+wakeURL]).To(Equal(1))
		})

		It("gives up after the attempt budget", func() {
			httpmock.RegisterResponder(http.MethodGet, dataURL,
				httpmock.NewStringResponder(http.StatusOK, `{"response": {"state": "asleep"}}`))

			Expect(client.WakeAndWait(context.Background())).To(MatchError(nav.ErrWakeTimeout))
			Expect(dataCalls()).To(Equal(10))
		})

		It("treats status poll errors as the vehicle being unavailable", func() {
			httpmock.RegisterResponder(http.MethodGet, dataURL,
				httpmock.NewStringResponder(http.StatusRequestTimeout, `{"error": "vehicle unavailable"}`))

			Expect(client.WakeAndWait(context.Background())).To(MatchError(nav.ErrWakeTimeout))
		})

		It("stops when the context is canceled", func() {
			httpmock.RegisterResponder(http.MethodGet, dataURL,
				httpmock.NewStringResponder(http.StatusOK, `{"response": {"state": "asleep"}}`))

			slow := nav.RetryPolicy{Attempts: 10, Interval: time.Hour}
			client = nav.NewCommandClient(testRecord(), "navshare-test", slow)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(client.WakeAndWait(ctx)).To(MatchError(context.Canceled))
		})
	})

	Describe("SendNavigation", func() {
		It("succeeds only on a confirmed result", func() {
			httpmock.RegisterResponder(http.MethodPost, navigateURL,
				httpmock.NewStringResponder(http.StatusOK, `{"response": {"result": true}}`))

			message, err := client.SendNavigation(context.Background(), "1 Infinite Loop")
			Expect(err).NotTo(HaveOccurred())
			Expect(message).To(ContainSubstring("1 Infinite Loop"))
		})

		DescribeTable("fails on every other response shape",
			func(body string) {
				httpmock.RegisterResponder(http.MethodPost, navigateURL,
					httpmock.NewStringResponder(http.StatusOK, body))

				_, err := client.SendNavigation(context.Background(), "1 Infinite Loop")
				var failed *nav.CommandFailedError
				Expect(errors.As(err, &failed)).To(BeTrue())
				Expect(string(failed.Response)).To(Equal(body))
			},
			Entry("result false", `{"response": {"result": false, "reason": "user_not_present"}}`),
			Entry("missing result", `{"response": {"reason": "unknown"}}`),
			Entry("missing response", `{"error": "timeout"}`),
			Entry("not json", `<html>bad gateway</html>`),
		)

		It("retains the body of an HTTP error response", func() {
			httpmock.RegisterResponder(http.MethodPost, navigateURL,
				httpmock.NewStringResponder(http.StatusRequestTimeout, `{"error": "vehicle unavailable"}`))

			_, err := client.SendNavigation(context.Background(), "1 Infinite Loop")
			var failed *nav.CommandFailedError
			Expect(errors.As(err, &failed)).To(BeTrue())
			Expect(string(failed.Response)).To(ContainSubstring("vehicle unavailable"))
		})
	})
})
