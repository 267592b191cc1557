package sqlinline

const QSelectIntegrationToken = `--sql 094420cc-65df-440b-a315-677f7bf0a30d
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 5d28a6a9-deef-4a3e-9676-bdf9b6b81fbf
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

const QListIntegrationProviders = `--sql 944e34cd-a771-4f4e-9614-4c1d8a1599eb
select provider, updated_at
from integration_tokens
order by provider asc;
`
