// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential tracks which public keys are authenticated and
// for how long.
//
// A [Store] holds keys in three tiers. TRANSIENT keys were just
// authenticated (for example by access token) and live briefly;
// SESSION keys proved themselves by repeated use; PERSISTENT keys
// belong to registered users and services and are resolved through an
// external [UIDResolver] when not cached locally. Each tier is a map
// under its own mutex, and no Store method holds that mutex while
// calling another locking method, so sweep-time conditions may call
// back into the Store freely.
//
// A [Manager] sweeps the expiring tiers on a schedule. A sweep of a
// tier that is due visits every entry [Store.ExpiredKeys] reports and
// applies that tier's conditions in order: [Promote] moves a busy
// transient key into SESSION (and always retires it from TRANSIENT),
// [Reset] renews a session key used since its last renewal and drops
// an idle one. A tier with no conditions simply drops the entries.
//
// ExpiredKeys selects entries whose expiration is at or after the
// threshold, and sweeps pass the current time. A due sweep runs on the
// next maintenance tick, so sweeps of a tier can be its purge interval
// plus one tick apart. Each tier's expiration must exceed that gap or
// an entry can expire between sweeps and never be selected.
package credential
