// Package policy decides who may do what inside an organization.
//
// Engine.Authorize is a pure function of an Actor, an optional Resource and
// an Action. Rules, evaluated in order with the first denial winning:
//
//  1. An actor without a tenant is denied everything.
//  2. A resource in another tenant is denied for every level.
//  3. Reads of a project or its comments are limited to the owner for plain
//     members; experts and admins read the whole organization.
//  4. Commenting, reviewing and direct status changes need an expert or admin.
//  5. Anyone with a tenant may submit a project.
//  6. Dashboards are per-user for members and per-organization for reviewers.
//  7. Member management is for admins.
//
// Decision.Scope tells the caller which rows an allowed listing may return.
package policy
