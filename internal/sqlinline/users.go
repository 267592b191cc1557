package sqlinline

const userColumns = `id::text, external_id, email, name, credits, created_at, updated_at`

const QInsertUser = `--sql e7ac2751-a141-4c97-9a3c-7ae28e9fa974
insert into users (id, external_id, email, name, credits, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::int, now(), now())
on conflict (external_id) do update set
    email = excluded.email,
    name = excluded.name,
    updated_at = now()
returning ` + userColumns + `;
`

const QSelectUserByID = `--sql ef3102c3-0634-4d03-92cd-76bfead8671b
select ` + userColumns + `
from users
where id = $1::uuid
limit 1;
`

const QSelectUserByExternalID = `--sql 6542b00e-9e1b-4dad-bb17-b6f85cdb67e2
select ` + userColumns + `
from users
where external_id = $1::text
limit 1;
`

// QDebitUserCredits only matches while the balance covers the amount, so a
// missing row means either an unknown user or insufficient credits.
const QDebitUserCredits = `--sql 527d3941-6804-4d0e-b865-3da59d3aa3ec
update users
set credits = credits - $2::int,
    updated_at = now()
where id = $1::uuid
  and credits >= $2::int
returning ` + userColumns + `;
`

const QCreditUserCredits = `--sql e2524c5e-36cd-4e66-94c6-6ccd10895621
update users
set credits = credits + $2::int,
    updated_at = now()
where id = $1::uuid
returning ` + userColumns + `;
`

const QGrantCreditsByEmail = `--sql 3854d46c-bc0e-44d3-81dd-7ad1e28d0318
update users
set credits = case when $3::boolean then $2::int else credits + $2::int end,
    updated_at = now()
where id = nullif($1::text, '')::uuid
   or (nullif($1::text, '') is null and lower(email) = lower($4::text))
returning ` + userColumns + `;
`
