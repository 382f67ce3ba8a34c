/*
 * MIT License
 *
 * Copyright (c) 2024 The cgiserver authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package resources_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/arqtic/cgiserver/internal/resources"
)

var _ = Describe("Pack construction", func() {
	It("rejects a non-positive max_clients", func() {
		_, err := resources.New(0)
		Expect(err).To(HaveOccurred())
	})

	It("builds a pack sized for maxClients", func() {
		p, err := resources.New(3)
		Expect(err).ToNot(HaveOccurred())
		Expect(p.MaxClients()).To(Equal(3))
		Expect(p.Count()).To(Equal(0))
	})
})

var _ = Describe("BARRIER admission", func() {
	It("blocks the (n+1)th acquire until a release happens", func() {
		p, err := resources.New(1)
		Expect(err).ToNot(HaveOccurred())

		ctx, cancel := context.WithTimeout(globalCtx, 5*time.Second)
		defer cancel()

		Expect(p.AcquireBarrier(ctx)).To(Succeed())

		blocked := make(chan error, 1)
		go func() {
			c, cc := context.WithTimeout(globalCtx, 200*time.Millisecond)
			defer cc()
			blocked <- p.AcquireBarrier(c)
		}()

		Eventually(blocked).Should(Receive(HaveOccurred()))

		p.ReleaseBarrier()

		c2, cc2 := context.WithTimeout(globalCtx, time.Second)
		defer cc2()
		Expect(p.AcquireBarrier(c2)).To(Succeed())
	})

	It("conserves permits across many concurrent acquire/release cycles", func() {
		p, err := resources.New(4)
		Expect(err).ToNot(HaveOccurred())

		done := make(chan struct{})
		for i := 0; i < 20; i++ {
			go func() {
				defer GinkgoRecover()
				ctx, cancel := context.WithTimeout(globalCtx, 5*time.Second)
				defer cancel()
				Expect(p.AcquireBarrier(ctx)).To(Succeed())
				p.ReleaseBarrier()
				done <- struct{}{}
			}()
		}
		for i := 0; i < 20; i++ {
			Eventually(done).Should(Receive())
		}

		ctx, cancel := context.WithTimeout(globalCtx, time.Second)
		defer cancel()
		for i := 0; i < 4; i++ {
			Expect(p.AcquireBarrier(ctx)).To(Succeed())
		}
	})
})

var _ = Describe("ACCEPT serialization", func() {
	It("only allows one holder at a time", func() {
		p, err := resources.New(2)
		Expect(err).ToNot(HaveOccurred())

		ctx, cancel := context.WithTimeout(globalCtx, 5*time.Second)
		defer cancel()

		Expect(p.AcquireAccept(ctx)).To(Succeed())

		c2, cc2 := context.WithTimeout(globalCtx, 200*time.Millisecond)
		defer cc2()
		Expect(p.AcquireAccept(c2)).To(HaveOccurred())

		p.ReleaseAccept()

		c3, cc3 := context.WithTimeout(globalCtx, time.Second)
		defer cc3()
		Expect(p.AcquireAccept(c3)).To(Succeed())
	})
})

var _ = Describe("handle table", func() {
	It("tracks registered handles and cancels them all on CancelAll", func() {
		p, err := resources.New(5)
		Expect(err).ToNot(HaveOccurred())

		cancelled := make([]bool, 3)
		ids := make([]uint64, 3)
		for i := range ids {
			i := i
			ids[i] = p.Register(func() { cancelled[i] = true })
		}
		Expect(p.Count()).To(Equal(3))

		p.CancelAll()
		for _, c := range cancelled {
			Expect(c).To(BeTrue())
		}

		for _, id := range ids {
			p.Unregister(id)
		}
		Expect(p.Count()).To(Equal(0))
	})

	It("allows Unregister to be called more than once safely", func() {
		p, err := resources.New(1)
		Expect(err).ToNot(HaveOccurred())

		id := p.Register(func() {})
		p.Unregister(id)
		p.Unregister(id)
		Expect(p.Count()).To(Equal(0))
	})
})
